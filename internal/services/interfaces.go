package services

import (
	"context"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/payments"
)

// OrderService creates orders and serves the owner's order index.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOwnerOrders(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error)
}

// CheckoutSessionGateway opens hosted checkout sessions for existing orders.
type CheckoutSessionGateway interface {
	CreateSession(ctx context.Context, cmd CreateSessionCommand) (CheckoutSession, error)
}

// PaymentVerifier reconciles an order with the processor's view of its checkout session.
type PaymentVerifier interface {
	Verify(ctx context.Context, sessionID, orderID string) (VerificationResult, error)
}

// IndexReconciler drains deferred owner index writes.
type IndexReconciler interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// OrderEventPublisher emits order lifecycle events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// CreateOrderCommand carries a validated-at-the-edge order request.
type CreateOrderCommand struct {
	ServiceDetails domain.ServiceDetails
	Customer       domain.CustomerInfo
	PaymentMethod  domain.PaymentMethod
	// OwnerID is empty for guest callers.
	OwnerID  string
	Metadata domain.OrderMetadata
}

// CreateSessionCommand asks for a checkout session covering Amount minor units of Order.
type CreateSessionCommand struct {
	Order          domain.Order
	Amount         int64
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is returned to the client so it can redirect to the hosted page.
type CheckoutSession struct {
	SessionID   string
	RedirectURL string
	OrderID     string
	ExpiresAt   time.Time
}

// VerificationResult describes the order after a verification attempt.
type VerificationResult struct {
	Order domain.Order
	// PaymentStatus is the processor-facing outcome: paid, processing, failed or expired.
	PaymentStatus string
	// Changed is true only for the call that moved the order to paid.
	Changed bool
}

// Paid reports whether the order is settled.
func (r VerificationResult) Paid() bool {
	return r.Order.PaymentStatus == domain.PaymentStatusPaid
}

// SweepResult summarises one reconciler pass.
type SweepResult struct {
	Scanned  int
	Repaired int
	Failed   int
}

// Order event types.
const (
	OrderEventCreated          = "order.created"
	OrderEventPaymentConfirmed = "order.payment_confirmed"
)

// OrderEvent is the message published for order lifecycle changes.
type OrderEvent struct {
	EventID       string    `json:"eventId"`
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	OwnerID       string    `json:"ownerId,omitempty"`
	ServiceType   string    `json:"serviceType"`
	PaymentMethod string    `json:"paymentMethod"`
	PaymentStatus string    `json:"paymentStatus"`
	Status        string    `json:"status"`
	ActualPrice   *float64  `json:"actualPrice,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// checkoutGateway is the processor surface used by checkout and verification.
type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (payments.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (payments.SessionDetails, error)
}
