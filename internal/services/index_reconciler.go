package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

const defaultSweepBatchSize = 100

// IndexReconcilerDeps wires the dependencies required by the index reconciler.
type IndexReconcilerDeps struct {
	Orders    repositories.OrderRepository
	Outbox    repositories.IndexOutboxRepository
	BatchSize int
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type indexReconciler struct {
	orders    repositories.OrderRepository
	outbox    repositories.IndexOutboxRepository
	batchSize int
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewIndexReconciler constructs an IndexReconciler.
func NewIndexReconciler(deps IndexReconcilerDeps) (IndexReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("index reconciler: order repository is required")
	}
	if deps.Outbox == nil {
		return nil, errors.New("index reconciler: outbox repository is required")
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &indexReconciler{
		orders:    deps.Orders,
		outbox:    deps.Outbox,
		batchSize: batch,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Sweep re-derives each deferred index entry from the primary record, which is the source of truth.
func (r *indexReconciler) Sweep(ctx context.Context) (SweepResult, error) {
	pending, err := r.outbox.ListOutbox(ctx, r.batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		order, err := r.orders.FindByID(ctx, entry.OrderID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				r.logger(ctx, "orders.index_outbox_orphaned", map[string]any{"orderId": entry.OrderID})
				r.settle(ctx, entry, &result)
				continue
			}
			r.fail(ctx, entry.OrderID, err, &result)
			continue
		}
		if order.IsGuest() {
			r.settle(ctx, entry, &result)
			continue
		}
		if err := r.outbox.MirrorIndex(ctx, order.OwnerID, order.IndexEntry()); err != nil {
			r.fail(ctx, entry.OrderID, err, &result)
			continue
		}
		if r.settle(ctx, entry, &result) {
			result.Repaired++
		}
	}

	if result.Scanned > 0 {
		r.logger(ctx, "orders.index_outbox_drained", map[string]any{
			"scanned":  result.Scanned,
			"repaired": result.Repaired,
			"failed":   result.Failed,
		})
	}
	return result, nil
}

// settle drops the swept outbox record. A record re-enqueued meanwhile carries a new ID and survives.
func (r *indexReconciler) settle(ctx context.Context, entry domain.IndexOutboxEntry, result *SweepResult) bool {
	if err := r.outbox.RemoveOutbox(ctx, entry.OrderID, entry.ID); err != nil {
		r.logger(ctx, "orders.index_outbox_remove_failed", map[string]any{"orderId": entry.OrderID, "error": err})
		r.fail(ctx, entry.OrderID, err, result)
		return false
	}
	return true
}

func (r *indexReconciler) fail(ctx context.Context, orderID string, err error, result *SweepResult) {
	result.Failed++
	if rerr := r.outbox.RecordOutboxAttempt(ctx, orderID, err.Error(), r.now()); rerr != nil {
		r.logger(ctx, "orders.index_outbox_update_failed", map[string]any{"orderId": orderID, "error": rerr})
	}
}
