package memory

import (
	"context"

	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

// Registry serves a single in-memory order repository.
type Registry struct {
	orders *OrderRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns a registry around repo, or a fresh repository when repo is nil.
func NewRegistry(repo *OrderRepository) *Registry {
	if repo == nil {
		repo = NewOrderRepository()
	}
	return &Registry{orders: repo}
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// IndexOutbox returns the outbox view of the order repository.
func (r *Registry) IndexOutbox() repositories.IndexOutboxRepository { return r.orders }

// Close is a no-op.
func (r *Registry) Close(context.Context) error { return nil }
