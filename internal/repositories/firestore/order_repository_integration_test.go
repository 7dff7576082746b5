//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	pconfig "github.com/Mayne0963/otw-sub006/internal/platform/config"
	pfirestore "github.com/Mayne0963/otw-sub006/internal/platform/firestore"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
	repofirestore "github.com/Mayne0963/otw-sub006/internal/repositories/firestore"
)

func newOrderRepository(t *testing.T) *repofirestore.OrderRepository {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "otw-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	repo, err := repofirestore.NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo
}

func testOrder(owner string) domain.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.Order{
		ID:      fmt.Sprintf("PKG-%d-TEST", time.Now().UnixNano()),
		OwnerID: owner,
		ServiceDetails: domain.ServiceDetails{
			Type:  domain.ServiceTypePackage,
			Title: "Send documents",
			Package: &domain.PackageDetails{
				PickupAddress:  "1 Main St",
				DropoffAddress: "2 Side St",
				WeightKg:       1.5,
			},
		},
		Customer:      domain.CustomerInfo{Name: "Ada", Phone: "555-0100", Email: "ada@example.com", Address: "1 Main St"},
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusProcessing,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderRepositoryCommitAndConfirm(t *testing.T) {
	repo := newOrderRepository(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	owner := fmt.Sprintf("user-%d", time.Now().UnixNano())
	order := testOrder(owner)

	result, err := repo.CommitOrder(ctx, order)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !result.Mirror.Mirrored() {
		t.Fatalf("expected mirrored index entry, got %#v", result.Mirror)
	}
	_, err = repo.CommitOrder(ctx, order)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	if _, err := repo.AttachSession(ctx, order.ID, "cs_test_1", time.Now()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := repo.AttachSession(ctx, order.ID, "cs_test_2", time.Now()); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on second session, got %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.ConfirmPayment(ctx, order.ID, domain.PaymentConfirmation{
				SessionID:   "cs_test_1",
				AmountMinor: 2599,
				ConfirmedAt: time.Now(),
			})
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			if res.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if changed != 1 {
		t.Fatalf("expected one transition, got %d", changed)
	}

	stored, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentStatusPaid || stored.ActualPrice == nil || *stored.ActualPrice != 25.99 {
		t.Fatalf("unexpected stored order %#v", stored)
	}
	if stored.ServiceDetails.Package == nil || stored.ServiceDetails.Package.WeightKg != 1.5 {
		t.Fatalf("service details payload lost: %#v", stored.ServiceDetails)
	}

	page, err := repo.ListIndex(ctx, owner, pagination.Params{PageSize: 10})
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected index page %#v", page)
	}
}

func TestOrderRepositoryGuestOrderHasNoIndex(t *testing.T) {
	repo := newOrderRepository(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := repo.CommitOrder(ctx, testOrder(""))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.Mirror.Attempted {
		t.Fatalf("guest order must not be mirrored")
	}
	stored, err := repo.FindByID(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !stored.IsGuest() {
		t.Fatalf("expected guest order, owner=%q", stored.OwnerID)
	}
}
