package repositories

import (
	"context"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// MirrorOutcome reports what happened to the owner index write that follows a primary write.
type MirrorOutcome struct {
	// Attempted is false for guest orders, which have no index entry.
	Attempted bool
	Attempts  int
	Err       error
	// Deferred is true when retries were exhausted and the entry was queued for the reconciler.
	Deferred bool
}

// Mirrored reports whether the index entry is known to be current.
func (m MirrorOutcome) Mirrored() bool {
	return m.Attempted && m.Err == nil
}

// CommitResult is returned by CommitOrder once the primary record exists.
type CommitResult struct {
	Order  domain.Order
	Mirror MirrorOutcome
}

// TransitionResult is returned by ConfirmPayment.
type TransitionResult struct {
	Order domain.Order
	// Changed is true only for the call that moved the order to paid.
	Changed bool
	Mirror  MirrorOutcome
}

// OrderRepository persists orders: one primary record per order plus, for owned orders, an entry in
// the owner's index.
type OrderRepository interface {
	// CommitOrder creates the primary record, failing with a conflict if the ID is taken, then
	// mirrors the index entry with retries. Mirror failures never fail the call.
	CommitOrder(ctx context.Context, order domain.Order) (CommitResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// AttachSession binds a checkout session to the order. It conflicts when a different session is
	// already attached; re-attaching the same session is a no-op.
	AttachSession(ctx context.Context, orderID, sessionID string, at time.Time) (domain.Order, error)
	// ConfirmPayment compare-and-sets the order to paid. Calls that observe an already paid order
	// return it with Changed=false.
	ConfirmPayment(ctx context.Context, orderID string, confirmation domain.PaymentConfirmation) (TransitionResult, error)
	ListIndex(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error)
}

// IndexOutboxRepository tracks index entries whose mirror write is still owed.
type IndexOutboxRepository interface {
	// MirrorIndex writes the index entry once. Older entries never replace newer ones.
	MirrorIndex(ctx context.Context, ownerID string, entry domain.OrderIndexEntry) error
	// EnqueueOutbox records a deferred mirror keyed by order ID. Re-enqueueing keeps one record.
	EnqueueOutbox(ctx context.Context, entry domain.IndexOutboxEntry) error
	ListOutbox(ctx context.Context, limit int) ([]domain.IndexOutboxEntry, error)
	RecordOutboxAttempt(ctx context.Context, orderID string, lastErr string, at time.Time) error
	// RemoveOutbox deletes the record for orderID only while its ID still equals recordID.
	RemoveOutbox(ctx context.Context, orderID, recordID string) error
}

// Registry exposes the repositories used by the service layer and owns their lifecycle.
type Registry interface {
	Orders() OrderRepository
	IndexOutbox() IndexOutboxRepository
	Close(ctx context.Context) error
}
