package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/Mayne0963/otw-sub006/internal/platform/firestore"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

// Registry wires the Firestore-backed repositories to a shared provider.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories on top of provider. Closing the registry closes the provider.
func NewRegistry(provider *pfirestore.Provider, opts ...OrderRepositoryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider, opts...)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, orders: orders}, nil
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository {
	return r.orders
}

// IndexOutbox returns the outbox view of the order repository.
func (r *Registry) IndexOutbox() repositories.IndexOutboxRepository {
	return r.orders
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
