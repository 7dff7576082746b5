package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	pfirestore "github.com/Mayne0963/otw-sub006/internal/platform/firestore"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

const (
	ordersCollection      = "orders"
	outboxCollection      = "orderIndexOutbox"
	ownerIndexPattern     = "users/%s/orders"
	errSessionAlreadySet  = "checkout session already attached"
	errOrderNotPayable    = "order payment status does not allow confirmation"
	indexCursorTimeLayout = time.RFC3339Nano
)

// OrderRepository stores orders in Firestore: the primary record under orders/{id} and, for owned
// orders, a summary under users/{uid}/orders/{id}.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	outbox   *pfirestore.Collection[outboxDocument]
	policy   repositories.MirrorPolicy
	now      func() time.Time
}

// OrderRepositoryOption customises the repository.
type OrderRepositoryOption func(*OrderRepository)

// WithMirrorPolicy overrides the retry policy for index mirror writes.
func WithMirrorPolicy(policy repositories.MirrorPolicy) OrderRepositoryOption {
	return func(r *OrderRepository) {
		r.policy = policy
	}
}

// WithOrderClock injects the clock used for outbox timestamps.
func WithOrderClock(now func() time.Time) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, opts ...OrderRepositoryOption) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	repo := &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		outbox:   pfirestore.NewCollection[outboxDocument](provider, outboxCollection),
		policy:   repositories.DefaultMirrorPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// CommitOrder creates the primary record and mirrors the owner index entry.
func (r *OrderRepository) CommitOrder(ctx context.Context, order domain.Order) (repositories.CommitResult, error) {
	if strings.TrimSpace(order.ID) == "" {
		return repositories.CommitResult{}, errors.New("order repository: order id is required")
	}
	if err := r.orders.Create(ctx, order.ID, encodeOrder(order)); err != nil {
		return repositories.CommitResult{}, err
	}
	mirror := repositories.MirrorOrDefer(ctx, r.policy, r, order, r.now().UTC())
	return repositories.CommitResult{Order: order, Mirror: mirror}, nil
}

// FindByID loads the primary record.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// AttachSession sets externalSessionId inside a transaction so it is written at most once.
func (r *OrderRepository) AttachSession(ctx context.Context, orderID, sessionID string, at time.Time) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Order{}, errors.New("order repository: session id is required")
	}
	ref, err := r.orders.Ref(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := r.orders.Decode(snap)
		if err != nil {
			return err
		}
		order := current.Data.toDomain(current.ID)
		switch order.ExternalSessionID {
		case sessionID:
			saved = order
			return nil
		case "":
		default:
			return status.Error(codes.FailedPrecondition, errSessionAlreadySet)
		}

		order.ExternalSessionID = sessionID
		order.UpdatedAt = at.UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "externalSessionId", Value: sessionID},
			{Path: "updatedAt", Value: order.UpdatedAt},
		}); err != nil {
			return err
		}
		saved = order
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.attach_session", err)
	}
	return saved, nil
}

// ConfirmPayment moves a pending or processing order to paid in a single-document transaction.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, orderID string, confirmation domain.PaymentConfirmation) (repositories.TransitionResult, error) {
	ref, err := r.orders.Ref(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return repositories.TransitionResult{}, err
	}

	var result repositories.TransitionResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.TransitionResult{}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := r.orders.Decode(snap)
		if err != nil {
			return err
		}
		order := current.Data.toDomain(current.ID)
		if order.PaymentStatus == domain.PaymentStatusPaid {
			result.Order = order
			return nil
		}
		if !domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentStatusPaid) {
			return status.Error(codes.FailedPrecondition, errOrderNotPayable)
		}

		applyConfirmation(&order, confirmation)
		if err := tx.Update(ref, []firestore.Update{
			{Path: "paymentStatus", Value: string(order.PaymentStatus)},
			{Path: "status", Value: string(order.Status)},
			{Path: "actualPrice", Value: *order.ActualPrice},
			{Path: "paymentCompletedAt", Value: *order.PaymentCompletedAt},
			{Path: "updatedAt", Value: order.UpdatedAt},
		}); err != nil {
			return err
		}
		result.Order = order
		result.Changed = true
		return nil
	})
	if err != nil {
		return repositories.TransitionResult{}, pfirestore.WrapError("orders.confirm_payment", err)
	}
	if result.Changed {
		result.Mirror = repositories.MirrorOrDefer(ctx, r.policy, r, result.Order, r.now().UTC())
	}
	return result, nil
}

func applyConfirmation(order *domain.Order, confirmation domain.PaymentConfirmation) {
	at := confirmation.ConfirmedAt.UTC()
	actual := confirmation.AmountMinor.Major()
	order.PaymentStatus = domain.PaymentStatusPaid
	order.Status = domain.OrderStatusConfirmed
	order.ActualPrice = &actual
	order.PaymentCompletedAt = &at
	order.UpdatedAt = at
}

// ListIndex reads the owner's index newest first.
func (r *OrderRepository) ListIndex(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error) {
	coll, err := r.indexCollection(ctx, ownerID)
	if err != nil {
		return pagination.Page[domain.OrderIndexEntry]{}, err
	}
	size := params.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	query := coll.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if after := params.Cursor.StartAfter; len(after) == 2 {
		createdAt, err := time.Parse(indexCursorTimeLayout, after[0])
		if err != nil {
			return pagination.Page[domain.OrderIndexEntry]{}, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
		}
		query = query.StartAfter(createdAt, after[1])
	} else if len(after) != 0 {
		return pagination.Page[domain.OrderIndexEntry]{}, pagination.ErrInvalidPageToken
	}

	iter := query.Limit(size + 1).Documents(ctx)
	defer iter.Stop()

	entries := make([]domain.OrderIndexEntry, 0, size)
	var hasMore bool
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return pagination.Page[domain.OrderIndexEntry]{}, pfirestore.WrapError("orders.list_index", err)
		}
		if len(entries) == size {
			hasMore = true
			break
		}
		var doc indexEntryDocument
		if err := snap.DataTo(&doc); err != nil {
			return pagination.Page[domain.OrderIndexEntry]{}, fmt.Errorf("decode order index %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain())
	}

	page := pagination.Page[domain.OrderIndexEntry]{Items: entries}
	if hasMore {
		last := entries[len(entries)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []string{last.CreatedAt.UTC().Format(indexCursorTimeLayout), last.OrderID},
		})
		if err != nil {
			return pagination.Page[domain.OrderIndexEntry]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// MirrorIndex writes the owner's index entry unless a newer one is already stored.
func (r *OrderRepository) MirrorIndex(ctx context.Context, ownerID string, entry domain.OrderIndexEntry) error {
	coll, err := r.indexCollection(ctx, ownerID)
	if err != nil {
		return err
	}
	ref := coll.Doc(entry.OrderID)
	doc := encodeIndexEntry(entry)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if snap != nil && snap.Exists() {
			var existing indexEntryDocument
			if err := snap.DataTo(&existing); err == nil && existing.UpdatedAt.After(doc.UpdatedAt) {
				return nil
			}
		}
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError("orders.mirror_index", err)
}

// EnqueueOutbox records a deferred index mirror under the order ID.
func (r *OrderRepository) EnqueueOutbox(ctx context.Context, entry domain.IndexOutboxEntry) error {
	return r.outbox.Put(ctx, entry.OrderID, outboxDocument(entry))
}

// ListOutbox returns the oldest deferred mirrors first.
func (r *OrderRepository) ListOutbox(ctx context.Context, limit int) ([]domain.IndexOutboxEntry, error) {
	docs, err := r.outbox.List(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.IndexOutboxEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, domain.IndexOutboxEntry(doc.Data))
	}
	return entries, nil
}

// RecordOutboxAttempt bumps the attempt counter after a failed sweep.
func (r *OrderRepository) RecordOutboxAttempt(ctx context.Context, orderID string, lastErr string, at time.Time) error {
	return r.outbox.Patch(ctx, orderID, []firestore.Update{
		{Path: "attempts", Value: firestore.Increment(1)},
		{Path: "lastError", Value: lastErr},
		{Path: "updatedAt", Value: at.UTC()},
	})
}

// RemoveOutbox deletes the deferred mirror only while it is still the record identified by recordID.
// A record re-enqueued since it was listed is left for the next sweep.
func (r *OrderRepository) RemoveOutbox(ctx context.Context, orderID, recordID string) error {
	ref, err := r.outbox.Ref(ctx, orderID)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := r.outbox.Decode(snap)
		if err != nil {
			return err
		}
		if current.Data.ID != recordID {
			return nil
		}
		return tx.Delete(ref)
	})
	return pfirestore.WrapError("orderIndexOutbox.remove", err)
}

func (r *OrderRepository) indexCollection(ctx context.Context, ownerID string) (*firestore.CollectionRef, error) {
	uid := strings.TrimSpace(ownerID)
	if uid == "" {
		return nil, errors.New("order repository: owner id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(ownerIndexPattern, uid)), nil
}

var (
	_ repositories.OrderRepository       = (*OrderRepository)(nil)
	_ repositories.IndexOutboxRepository = (*OrderRepository)(nil)
)
