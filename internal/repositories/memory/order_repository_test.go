package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

func sampleOrder(id, owner string, created time.Time) domain.Order {
	return domain.Order{
		ID:      id,
		OwnerID: owner,
		ServiceDetails: domain.ServiceDetails{
			Type:  domain.ServiceTypeGrocery,
			Title: "Weekly groceries",
		},
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusProcessing,
		Status:        domain.OrderStatusPending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestCommitOrderRejectsDuplicateID(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	order := sampleOrder("GRO-1", "", time.Now())

	if _, err := repo.CommitOrder(ctx, order); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := repo.CommitOrder(ctx, order)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCommitOrderMirrorsOwnedOrdersOnly(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Now()

	guest, err := repo.CommitOrder(ctx, sampleOrder("GRO-guest", "", now))
	if err != nil {
		t.Fatalf("guest commit: %v", err)
	}
	if guest.Mirror.Attempted {
		t.Fatalf("guest order must not be mirrored")
	}
	owned, err := repo.CommitOrder(ctx, sampleOrder("GRO-owned", "user-1", now))
	if err != nil {
		t.Fatalf("owned commit: %v", err)
	}
	if !owned.Mirror.Mirrored() {
		t.Fatalf("expected mirrored outcome, got %#v", owned.Mirror)
	}
	if repo.IndexSize() != 1 {
		t.Fatalf("expected exactly one index entry, got %d", repo.IndexSize())
	}
	if _, ok := repo.IndexEntry("user-1", "GRO-owned"); !ok {
		t.Fatalf("expected index entry for owned order")
	}
}

func TestCommitOrderDefersFailedMirror(t *testing.T) {
	repo := NewOrderRepository()
	repo.FailMirror = func(string, string) error { return ErrInjected }

	result, err := repo.CommitOrder(context.Background(), sampleOrder("RIDE-1", "user-1", time.Now()))
	if err != nil {
		t.Fatalf("mirror failure must not fail commit: %v", err)
	}
	if !result.Mirror.Deferred {
		t.Fatalf("expected deferred mirror, got %#v", result.Mirror)
	}
	if _, err := repo.FindByID(context.Background(), "RIDE-1"); err != nil {
		t.Fatalf("primary record must exist: %v", err)
	}
	pending, _ := repo.ListOutbox(context.Background(), 10)
	if len(pending) != 1 || pending[0].OrderID != "RIDE-1" {
		t.Fatalf("expected outbox record, got %#v", pending)
	}
}

func TestAttachSessionIsWriteOnce(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	if _, err := repo.CommitOrder(ctx, sampleOrder("PKG-1", "", time.Now())); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := repo.AttachSession(ctx, "PKG-1", "cs_1", time.Now()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := repo.AttachSession(ctx, "PKG-1", "cs_1", time.Now()); err != nil {
		t.Fatalf("re-attaching the same session should be a no-op: %v", err)
	}
	_, err := repo.AttachSession(ctx, "PKG-1", "cs_2", time.Now())
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
	order, _ := repo.FindByID(ctx, "PKG-1")
	if order.ExternalSessionID != "cs_1" {
		t.Fatalf("session changed to %q", order.ExternalSessionID)
	}
}

func TestConfirmPaymentTransitionsAtMostOnce(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	if _, err := repo.CommitOrder(ctx, sampleOrder("GRO-2", "user-1", time.Now())); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
		stamps  = map[time.Time]struct{}{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := repo.ConfirmPayment(ctx, "GRO-2", domain.PaymentConfirmation{
				SessionID:   "cs_1",
				AmountMinor: 2599,
				ConfirmedAt: time.Unix(int64(1700000000+i), 0),
			})
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if result.Changed {
				changed++
			}
			stamps[*result.Order.PaymentCompletedAt] = struct{}{}
		}(i)
	}
	wg.Wait()

	if changed != 1 {
		t.Fatalf("expected exactly one transition, got %d", changed)
	}
	if len(stamps) != 1 {
		t.Fatalf("paymentCompletedAt must be set once, saw %d values", len(stamps))
	}
	order, _ := repo.FindByID(ctx, "GRO-2")
	if order.ActualPrice == nil || *order.ActualPrice != 25.99 {
		t.Fatalf("expected actual price 25.99, got %v", order.ActualPrice)
	}
	entry, ok := repo.IndexEntry("user-1", "GRO-2")
	if !ok || entry.PaymentStatus != domain.PaymentStatusPaid || entry.Status != domain.OrderStatusConfirmed {
		t.Fatalf("index entry not mirrored: %#v", entry)
	}
}

func TestMirrorIndexKeepsNewerEntry(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Now()
	newer := domain.OrderIndexEntry{OrderID: "GRO-3", PaymentStatus: domain.PaymentStatusPaid, UpdatedAt: now}
	older := domain.OrderIndexEntry{OrderID: "GRO-3", PaymentStatus: domain.PaymentStatusProcessing, UpdatedAt: now.Add(-time.Minute)}

	_ = repo.MirrorIndex(ctx, "user-1", newer)
	_ = repo.MirrorIndex(ctx, "user-1", older)

	entry, _ := repo.IndexEntry("user-1", "GRO-3")
	if entry.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("stale mirror overwrote newer entry: %#v", entry)
	}
}

func TestListIndexPaginates(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"GRO-a", "GRO-b", "GRO-c"} {
		if _, err := repo.CommitOrder(ctx, sampleOrder(id, "user-1", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("commit %s: %v", id, err)
		}
	}

	first, err := repo.ListIndex(ctx, "user-1", pagination.Params{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Items) != 2 || first.Items[0].OrderID != "GRO-c" || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %#v", first)
	}
	cursor, err := pagination.DecodeToken(first.NextPageToken)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, err := repo.ListIndex(ctx, "user-1", pagination.Params{PageSize: 2, Cursor: cursor})
	if err != nil {
		t.Fatalf("list second: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].OrderID != "GRO-a" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %#v", second)
	}
}
