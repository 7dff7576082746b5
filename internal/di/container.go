package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/platform/config"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders     services.OrderService
	Checkout   services.CheckoutSessionGateway
	Payments   services.PaymentVerifier
	Reconciler services.IndexReconciler
}

// Deps carries the infrastructure built outside the container. Gateway and Events are optional:
// without a gateway the checkout and verification services stay unset, without a publisher events
// are skipped.
type Deps struct {
	Gateway payments.Gateway
	Events  services.OrderEventPublisher
	Logger  func(ctx context.Context, event string, fields map[string]any)
	Meter   metric.Meter
	Clock   func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry, while tests and local runs can supply the in-memory one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	ordersRepo := reg.Orders()
	if ordersRepo == nil {
		return svc, errors.New("order repository is required")
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: ordersRepo,
		Events: deps.Events,
		Clock:  clock,
		Logger: deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if deps.Gateway != nil {
		svc.Checkout = services.NewCheckoutService(services.CheckoutServiceDeps{
			Orders:   ordersRepo,
			Payments: deps.Gateway,
			Currency: cfg.PSP.Currency,
			Clock:    clock,
			Logger:   deps.Logger,
		})

		verifier, err := services.NewPaymentVerifier(services.PaymentVerifierDeps{
			Orders:   ordersRepo,
			Payments: deps.Gateway,
			Events:   deps.Events,
			Clock:    clock,
			Logger:   deps.Logger,
			Meter:    deps.Meter,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment verifier: %w", err)
		}
		svc.Payments = verifier
	}

	if outbox := reg.IndexOutbox(); outbox != nil {
		reconciler, err := services.NewIndexReconciler(services.IndexReconcilerDeps{
			Orders:    ordersRepo,
			Outbox:    outbox,
			BatchSize: cfg.OrderIndex.SweepBatchSize,
			Clock:     clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build index reconciler: %w", err)
		}
		svc.Reconciler = reconciler
	}

	return svc, nil
}
