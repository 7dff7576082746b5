package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrGatewayTimeout is returned when the processor did not answer within the configured timeout.
	ErrGatewayTimeout = errors.New("payments: gateway timeout")
	// ErrGatewayUnavailable wraps any other processor or transport failure.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
	// ErrSessionNotFound is returned when the processor does not know the session ID.
	ErrSessionNotFound = errors.New("payments: checkout session not found")
)

// LineItem is a single priced line on a hosted checkout page.
type LineItem struct {
	Name        string
	Description string
	Quantity    int64
	// UnitAmount is in minor units.
	UnitAmount int64
}

// CheckoutRequest captures what the processor needs to open a hosted checkout session.
type CheckoutRequest struct {
	Currency       string
	LineItems      []LineItem
	Metadata       map[string]string
	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	IdempotencyKey string
}

// Session is the processor's answer to CreateCheckoutSession.
type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// SessionStatus is the lifecycle state of a checkout session.
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

// SessionPayment is the payment state the processor reports for a session.
type SessionPayment string

const (
	SessionPaid              SessionPayment = "paid"
	SessionUnpaid            SessionPayment = "unpaid"
	SessionNoPaymentRequired SessionPayment = "no_payment_required"
)

// SessionDetails is a processor-neutral view of a retrieved session.
type SessionDetails struct {
	ID          string
	Status      SessionStatus
	Payment     SessionPayment
	AmountTotal int64
	Currency    string
	Metadata    map[string]string
}

// Paid reports whether the processor considers the session settled.
func (d SessionDetails) Paid() bool {
	return d.Payment == SessionPaid
}

// Gateway is the payment processor as seen by the checkout and verification flows.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error)
}
