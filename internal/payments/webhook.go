package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrInvalidWebhook is returned when the payload signature or body cannot be trusted.
var ErrInvalidWebhook = errors.New("payments: invalid webhook")

// Stripe event types that settle a checkout session.
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// WebhookEvent is a verified processor notification about a checkout session.
type WebhookEvent struct {
	ID      string
	Type    string
	Session SessionDetails
}

// Settles reports whether the event may move an order to paid.
func (e WebhookEvent) Settles() bool {
	switch e.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceeded:
		return e.Session.Paid()
	}
	return false
}

// StripeWebhookVerifier checks the Stripe-Signature header against the endpoint secret.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier constructs a verifier for the endpoint signing secret.
func NewStripeWebhookVerifier(secret string) (*StripeWebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	return &StripeWebhookVerifier{secret: secret}, nil
}

// Parse verifies the signature and decodes checkout session events. Other event types are
// returned with an empty session.
func (v *StripeWebhookVerifier) Parse(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") {
		return out, nil
	}
	if event.Data == nil {
		return WebhookEvent{}, fmt.Errorf("%w: event %s has no data", ErrInvalidWebhook, event.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: decode session: %v", ErrInvalidWebhook, err)
	}
	out.Session = sessionDetails(&session)
	return out, nil
}
