package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/platform/textutil"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

const (
	guestOwnerLabel       = "guest"
	sessionIDPlaceholder  = "{CHECKOUT_SESSION_ID}"
	maxMetadataValueRunes = 500
)

// CheckoutServiceDeps wires the dependencies required by the checkout session gateway.
type CheckoutServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments checkoutGateway
	Currency string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders   repositories.OrderRepository
	payments checkoutGateway
	currency string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs the checkout session gateway. Missing collaborators are reported
// per call as ErrServiceMisconfigured so the rest of the API can still serve.
func NewCheckoutService(deps CheckoutServiceDeps) CheckoutSessionGateway {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		orders:   deps.Orders,
		payments: deps.Payments,
		currency: strings.ToLower(strings.TrimSpace(deps.Currency)),
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}
}

// CreateSession opens a hosted checkout session for the order and records its ID on the order.
func (s *checkoutService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (CheckoutSession, error) {
	if s == nil || s.orders == nil || s.payments == nil {
		return CheckoutSession{}, ErrServiceMisconfigured
	}
	order := cmd.Order
	if strings.TrimSpace(order.ID) == "" {
		return CheckoutSession{}, fmt.Errorf("%w: order is required", ErrCheckoutInvalidInput)
	}
	amount, err := domain.NewMinorUnits(cmd.Amount)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	if err := validateCustomer(order.Customer); err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	successURL, cancelURL, err := checkoutURLs(cmd.SuccessURL, cmd.CancelURL, order.ID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if order.ExternalSessionID != "" {
		return CheckoutSession{}, fmt.Errorf("%w: order %s", ErrCheckoutSessionExists, order.ID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return CheckoutSession{}, fmt.Errorf("%w: order %s is already paid", ErrCheckoutSessionExists, order.ID)
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Currency: s.currency,
		LineItems: []payments.LineItem{{
			Name:        order.ServiceDetails.Title,
			Description: order.ServiceDetails.Description,
			Quantity:    1,
			UnitAmount:  amount.Int64(),
		}},
		Metadata:       sessionMetadata(order),
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		CustomerEmail:  order.Customer.Email,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		s.logger(ctx, "checkout.gateway_failed", map[string]any{
			"orderId": order.ID,
			"timeout": errors.Is(err, payments.ErrGatewayTimeout),
			"error":   err,
		})
		return CheckoutSession{}, fmt.Errorf("%w: %w", ErrCheckoutGatewayFailed, err)
	}

	if _, err := s.orders.AttachSession(ctx, order.ID, session.ID, s.now()); err != nil {
		s.logger(ctx, "checkout.attach_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err,
		})
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return CheckoutSession{}, ErrOrderNotFound
			case repoErr.IsConflict():
				return CheckoutSession{}, fmt.Errorf("%w: order %s", ErrCheckoutSessionExists, order.ID)
			}
		}
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutPersistence, err)
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"orderId":   order.ID,
		"sessionId": session.ID,
		"amount":    amount.Int64(),
	})
	return CheckoutSession{
		SessionID:   session.ID,
		RedirectURL: session.URL,
		OrderID:     order.ID,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// sessionMetadata lets the order be identified from processor data alone.
func sessionMetadata(order domain.Order) map[string]string {
	owner := order.OwnerID
	if owner == "" {
		owner = guestOwnerLabel
	}
	return textutil.CompactStringMap(map[string]string{
		"orderId":             order.ID,
		"ownerIdentity":       owner,
		"serviceType":         string(order.ServiceDetails.Type),
		"customerName":        order.Customer.Name,
		"customerPhone":       order.Customer.Phone,
		"customerAddress":     order.Customer.Address,
		"specialInstructions": order.Customer.SpecialInstructions,
	}, maxMetadataValueRunes)
}

func checkoutURLs(success, cancel, orderID string) (string, string, error) {
	success = strings.TrimSpace(success)
	cancel = strings.TrimSpace(cancel)
	if success == "" || cancel == "" {
		return "", "", ErrServiceMisconfigured
	}
	successURL, err := withOrderID(success, orderID)
	if err != nil {
		return "", "", fmt.Errorf("%w: success url: %v", ErrServiceMisconfigured, err)
	}
	cancelURL, err := withOrderID(cancel, orderID)
	if err != nil {
		return "", "", fmt.Errorf("%w: cancel url: %v", ErrServiceMisconfigured, err)
	}
	return successURL, cancelURL, nil
}

// withOrderID appends order_id while keeping the processor's session placeholder unescaped.
func withOrderID(raw, orderID string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !parsed.IsAbs() {
		return "", fmt.Errorf("%q is not absolute", raw)
	}
	query := parsed.Query()
	query.Set("order_id", orderID)
	parsed.RawQuery = query.Encode()
	return strings.Replace(parsed.String(), url.QueryEscape(sessionIDPlaceholder), sessionIDPlaceholder, 1), nil
}
