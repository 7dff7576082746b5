package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports a missing record.
func (e *Error) IsNotFound() bool { return e.NotFound }

// IsConflict reports a rejected conditional write.
func (e *Error) IsConflict() bool { return e.Conflict }

// IsUnavailable reports an injected outage.
func (e *Error) IsUnavailable() bool { return e.Unavailable }

// ErrInjected is returned by writes failed through FailMirror.
var ErrInjected = errors.New("memory: injected failure")

// OrderRepository is a mutex-guarded store with the same conditional-write semantics as the
// Firestore repository. It backs local runs and service tests.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	index  map[string]map[string]domain.OrderIndexEntry
	outbox map[string]domain.IndexOutboxEntry

	policy repositories.MirrorPolicy
	now    func() time.Time

	// FailMirror, when set, is consulted before every index write; a non-nil result fails it.
	FailMirror func(ownerID, orderID string) error
}

// NewOrderRepository constructs an empty repository whose mirror retries do not sleep.
func NewOrderRepository() *OrderRepository {
	policy := repositories.DefaultMirrorPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return &OrderRepository{
		orders: make(map[string]domain.Order),
		index:  make(map[string]map[string]domain.OrderIndexEntry),
		outbox: make(map[string]domain.IndexOutboxEntry),
		policy: policy,
		now:    time.Now,
	}
}

// CommitOrder stores the primary record then mirrors the index entry.
func (r *OrderRepository) CommitOrder(ctx context.Context, order domain.Order) (repositories.CommitResult, error) {
	if strings.TrimSpace(order.ID) == "" {
		return repositories.CommitResult{}, errors.New("order repository: order id is required")
	}
	r.mu.Lock()
	if _, exists := r.orders[order.ID]; exists {
		r.mu.Unlock()
		return repositories.CommitResult{}, &Error{Op: "orders.create", Err: errors.New("order already exists"), Conflict: true}
	}
	r.orders[order.ID] = cloneOrder(order)
	r.mu.Unlock()

	mirror := repositories.MirrorOrDefer(ctx, r.policy, r, order, r.now().UTC())
	return repositories.CommitResult{Order: cloneOrder(order), Mirror: mirror}, nil
}

// FindByID returns a copy of the primary record.
func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return cloneOrder(order), nil
}

// AttachSession binds sessionID when no other session is attached.
func (r *OrderRepository) AttachSession(_ context.Context, orderID, sessionID string, at time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.attach_session", orderID)
	}
	switch order.ExternalSessionID {
	case sessionID:
		return cloneOrder(order), nil
	case "":
	default:
		return domain.Order{}, &Error{Op: "orders.attach_session", Err: errors.New("checkout session already attached"), Conflict: true}
	}
	order.ExternalSessionID = sessionID
	order.UpdatedAt = at.UTC()
	r.orders[orderID] = order
	return cloneOrder(order), nil
}

// ConfirmPayment compare-and-sets the order to paid under the store lock.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, orderID string, confirmation domain.PaymentConfirmation) (repositories.TransitionResult, error) {
	r.mu.Lock()
	order, ok := r.orders[orderID]
	if !ok {
		r.mu.Unlock()
		return repositories.TransitionResult{}, notFound("orders.confirm_payment", orderID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		r.mu.Unlock()
		return repositories.TransitionResult{Order: cloneOrder(order)}, nil
	}
	if !domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentStatusPaid) {
		r.mu.Unlock()
		return repositories.TransitionResult{}, &Error{Op: "orders.confirm_payment", Err: fmt.Errorf("payment status %s cannot become paid", order.PaymentStatus), Conflict: true}
	}
	at := confirmation.ConfirmedAt.UTC()
	actual := confirmation.AmountMinor.Major()
	order.PaymentStatus = domain.PaymentStatusPaid
	order.Status = domain.OrderStatusConfirmed
	order.ActualPrice = &actual
	order.PaymentCompletedAt = &at
	order.UpdatedAt = at
	r.orders[orderID] = order
	r.mu.Unlock()

	result := repositories.TransitionResult{Order: cloneOrder(order), Changed: true}
	result.Mirror = repositories.MirrorOrDefer(ctx, r.policy, r, order, r.now().UTC())
	return result, nil
}

// ListIndex pages through the owner's index newest first.
func (r *OrderRepository) ListIndex(_ context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error) {
	r.mu.Lock()
	entries := make([]domain.OrderIndexEntry, 0, len(r.index[ownerID]))
	for _, entry := range r.index[ownerID] {
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].OrderID > entries[j].OrderID
	})

	start := 0
	if after := params.Cursor.StartAfter; len(after) == 2 {
		for i, entry := range entries {
			if entry.OrderID == after[1] {
				start = i + 1
				break
			}
		}
	}
	size := params.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	end := start + size
	if end > len(entries) {
		end = len(entries)
	}

	page := pagination.Page[domain.OrderIndexEntry]{Items: entries[start:end]}
	if end < len(entries) {
		last := entries[end-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []string{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.OrderID},
		})
		if err != nil {
			return pagination.Page[domain.OrderIndexEntry]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// MirrorIndex stores the entry unless a newer one exists.
func (r *OrderRepository) MirrorIndex(_ context.Context, ownerID string, entry domain.OrderIndexEntry) error {
	if r.FailMirror != nil {
		if err := r.FailMirror(ownerID, entry.OrderID); err != nil {
			return &Error{Op: "orders.mirror_index", Err: err, Unavailable: true}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owned, ok := r.index[ownerID]
	if !ok {
		owned = make(map[string]domain.OrderIndexEntry)
		r.index[ownerID] = owned
	}
	if existing, ok := owned[entry.OrderID]; ok && existing.UpdatedAt.After(entry.UpdatedAt) {
		return nil
	}
	owned[entry.OrderID] = entry
	return nil
}

// IndexEntry returns the stored index entry, if any.
func (r *OrderRepository) IndexEntry(ownerID, orderID string) (domain.OrderIndexEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.index[ownerID][orderID]
	return entry, ok
}

// IndexSize counts index entries across all owners.
func (r *OrderRepository) IndexSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, owned := range r.index {
		total += len(owned)
	}
	return total
}

// EnqueueOutbox records a deferred mirror keyed by order ID.
func (r *OrderRepository) EnqueueOutbox(_ context.Context, entry domain.IndexOutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbox[entry.OrderID] = entry
	return nil
}

// ListOutbox returns deferred mirrors oldest first.
func (r *OrderRepository) ListOutbox(_ context.Context, limit int) ([]domain.IndexOutboxEntry, error) {
	r.mu.Lock()
	entries := make([]domain.IndexOutboxEntry, 0, len(r.outbox))
	for _, entry := range r.outbox {
		entries = append(entries, entry)
	}
	r.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RecordOutboxAttempt bumps the attempt counter.
func (r *OrderRepository) RecordOutboxAttempt(_ context.Context, orderID string, lastErr string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.outbox[orderID]
	if !ok {
		return notFound("orderIndexOutbox.update", orderID)
	}
	entry.Attempts++
	entry.LastError = lastErr
	entry.UpdatedAt = at.UTC()
	r.outbox[orderID] = entry
	return nil
}

// RemoveOutbox deletes the deferred mirror if it is still the record identified by recordID.
func (r *OrderRepository) RemoveOutbox(_ context.Context, orderID, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.outbox[orderID]; ok && entry.ID == recordID {
		delete(r.outbox, orderID)
	}
	return nil
}

// OutboxEntry returns the deferred mirror recorded for orderID.
func (r *OrderRepository) OutboxEntry(orderID string) (domain.IndexOutboxEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.outbox[orderID]
	return entry, ok
}

func notFound(op, id string) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%s not found", id), NotFound: true}
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	if order.ActualPrice != nil {
		v := *order.ActualPrice
		out.ActualPrice = &v
	}
	if order.PaymentCompletedAt != nil {
		v := *order.PaymentCompletedAt
		out.PaymentCompletedAt = &v
	}
	if order.CompletedAt != nil {
		v := *order.CompletedAt
		out.CompletedAt = &v
	}
	if order.AssignedHelper != nil {
		v := *order.AssignedHelper
		out.AssignedHelper = &v
	}
	if order.Notes != nil {
		out.Notes = append([]string(nil), order.Notes...)
	}
	return out
}

var (
	_ repositories.OrderRepository       = (*OrderRepository)(nil)
	_ repositories.IndexOutboxRepository = (*OrderRepository)(nil)
	_ repositories.RepositoryError       = (*Error)(nil)
)
