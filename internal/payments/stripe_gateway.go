package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const defaultGatewayTimeout = 10 * time.Second

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Currency string
	// Timeout bounds every processor call, on both the HTTP client and the call context.
	Timeout  time.Duration
	Logger   StripeLogger
	sessions stripeSessionAPI
}

// StripeGateway implements Gateway on Stripe Checkout.
type StripeGateway struct {
	sessions stripeSessionAPI
	currency string
	timeout  time.Duration
	logger   StripeLogger
}

// NewStripeGateway constructs a Stripe-backed Gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	sessions := cfg.sessions
	if sessions == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		backends := stripe.NewBackends(&http.Client{Timeout: timeout})
		sessions = client.New(apiKey, backends).CheckoutSessions
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &StripeGateway{
		sessions: sessions,
		currency: currency,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// CreateCheckoutSession opens a hosted payment-mode Checkout session.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error) {
	if g == nil {
		return Session{}, errors.New("stripe: gateway is nil")
	}
	if len(req.LineItems) == 0 {
		return Session{}, errors.New("stripe: at least one line item is required")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{
			string(stripe.PaymentMethodTypeCard),
		}),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	for _, item := range req.LineItems {
		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		params.LineItems = append(params.LineItems, line)
	}

	if len(req.Metadata) > 0 {
		params.Metadata = copyMetadata(req.Metadata)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(req.Metadata),
		}
	}

	session, err := g.sessions.New(params)
	if err != nil {
		return Session{}, classifyStripeError("create checkout session", err)
	}

	g.logger(ctx, "payments.stripe.session_created", map[string]any{
		"sessionId": session.ID,
		"currency":  currency,
	})

	out := Session{ID: session.ID, URL: session.URL}
	if session.ExpiresAt != 0 {
		out.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return out, nil
}

// RetrieveSession reads the session's current status and payment state.
func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	if g == nil {
		return SessionDetails{}, errors.New("stripe: gateway is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionDetails{}, fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := g.sessions.Get(sessionID, params)
	if err != nil {
		return SessionDetails{}, classifyStripeError("retrieve checkout session", err)
	}
	return sessionDetails(session), nil
}

func sessionDetails(session *stripe.CheckoutSession) SessionDetails {
	if session == nil {
		return SessionDetails{}
	}
	return SessionDetails{
		ID:          session.ID,
		Status:      SessionStatus(session.Status),
		Payment:     SessionPayment(session.PaymentStatus),
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
		Metadata:    copyMetadata(session.Metadata),
	}
}

func classifyStripeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: stripe %s: %v", ErrGatewayTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: stripe %s: %v", ErrGatewayTimeout, op, err)
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && (stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing) {
		return fmt.Errorf("%w: stripe %s: %v", ErrSessionNotFound, op, err)
	}
	return fmt.Errorf("%w: stripe %s: %v", ErrGatewayUnavailable, op, err)
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Gateway = (*StripeGateway)(nil)
