package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/repositories"
)

const verifierMeterName = "github.com/Mayne0963/otw-sub006/internal/services"

// Processor-facing outcomes reported in VerificationResult.PaymentStatus.
const (
	VerifyStatusPaid       = "paid"
	VerifyStatusProcessing = "processing"
	VerifyStatusFailed     = "failed"
	VerifyStatusExpired    = "expired"
)

// PaymentVerifierDeps wires the dependencies required by the payment verifier.
type PaymentVerifierDeps struct {
	Orders   repositories.OrderRepository
	Payments checkoutGateway
	Events   OrderEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Meter    metric.Meter
}

type paymentVerifier struct {
	orders   repositories.OrderRepository
	payments checkoutGateway
	events   OrderEventPublisher
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	outcomes metric.Int64Counter
}

// NewPaymentVerifier constructs a PaymentVerifier. Missing collaborators surface per call as
// ErrServiceMisconfigured.
func NewPaymentVerifier(deps PaymentVerifierDeps) (PaymentVerifier, error) {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(verifierMeterName)
	}
	outcomes, err := meter.Int64Counter("payments.verifications",
		metric.WithDescription("Payment verification attempts by outcome"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("payment verifier: create counter: %w", err)
	}
	return &paymentVerifier{
		orders:   deps.Orders,
		payments: deps.Payments,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		outcomes: outcomes,
	}, nil
}

// Verify checks the session with the processor and, when it is paid, confirms the order once.
func (v *paymentVerifier) Verify(ctx context.Context, sessionID, orderID string) (VerificationResult, error) {
	result, err := v.verify(ctx, strings.TrimSpace(sessionID), strings.TrimSpace(orderID))
	v.record(ctx, result, err)
	return result, err
}

func (v *paymentVerifier) verify(ctx context.Context, sessionID, orderID string) (VerificationResult, error) {
	if v == nil || v.orders == nil || v.payments == nil {
		return VerificationResult{}, ErrServiceMisconfigured
	}
	if sessionID == "" || orderID == "" {
		return VerificationResult{}, fmt.Errorf("%w: sessionId and orderId are required", ErrVerifyInvalidInput)
	}

	session, err := v.payments.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return VerificationResult{}, fmt.Errorf("%w: %v", ErrPaymentNotCompleted, err)
		}
		v.logger(ctx, "payments.gateway_failed", map[string]any{
			"orderId":   orderID,
			"sessionId": sessionID,
			"timeout":   errors.Is(err, payments.ErrGatewayTimeout),
			"error":     err,
		})
		return VerificationResult{}, fmt.Errorf("%w: %w", ErrVerifyGatewayFailed, err)
	}

	order, err := v.orders.FindByID(ctx, orderID)
	if err != nil {
		return VerificationResult{}, translateLoadError(err)
	}

	// A session bound to another order sees nothing, paid or not.
	if order.ExternalSessionID != sessionID {
		v.logger(ctx, "payments.session_mismatch", map[string]any{
			"orderId":   orderID,
			"sessionId": sessionID,
			"paid":      session.Paid(),
		})
		return VerificationResult{}, ErrSessionMismatch
	}
	if !session.Paid() {
		return VerificationResult{Order: order, PaymentStatus: unpaidStatus(session, order)}, nil
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		v.logger(ctx, "payments.verify_short_circuit", map[string]any{"orderId": orderID})
		return VerificationResult{Order: order, PaymentStatus: VerifyStatusPaid}, nil
	}

	transition, err := v.orders.ConfirmPayment(ctx, orderID, domain.PaymentConfirmation{
		SessionID:   sessionID,
		AmountMinor: domain.MinorUnits(session.AmountTotal),
		ConfirmedAt: v.now(),
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return VerificationResult{}, ErrOrderNotFound
			case repoErr.IsConflict():
				return VerificationResult{}, fmt.Errorf("%w: %v", ErrPaymentConflict, err)
			}
		}
		return VerificationResult{}, fmt.Errorf("%w: %v", ErrOrderPersistence, err)
	}

	if transition.Mirror.Attempted && transition.Mirror.Err != nil {
		v.logger(ctx, "orders.index_mirror_failed", map[string]any{
			"orderId":  orderID,
			"ownerId":  transition.Order.OwnerID,
			"attempts": transition.Mirror.Attempts,
			"deferred": transition.Mirror.Deferred,
			"error":    transition.Mirror.Err,
		})
	}
	if !transition.Changed {
		v.logger(ctx, "payments.verify_short_circuit", map[string]any{"orderId": orderID})
		return VerificationResult{Order: transition.Order, PaymentStatus: VerifyStatusPaid}, nil
	}

	v.logger(ctx, "payments.verified", map[string]any{
		"orderId":     orderID,
		"sessionId":   sessionID,
		"amountMinor": session.AmountTotal,
	})
	publishOrderEvent(ctx, v.events, v.logger, OrderEventPaymentConfirmed, transition.Order, v.now())
	return VerificationResult{Order: transition.Order, PaymentStatus: VerifyStatusPaid, Changed: true}, nil
}

func unpaidStatus(session payments.SessionDetails, order domain.Order) string {
	switch {
	case session.Status == payments.SessionExpired:
		return VerifyStatusExpired
	case order.PaymentStatus == domain.PaymentStatusFailed:
		return VerifyStatusFailed
	case order.PaymentStatus == domain.PaymentStatusPaid:
		return VerifyStatusPaid
	}
	return VerifyStatusProcessing
}

func (v *paymentVerifier) record(ctx context.Context, result VerificationResult, err error) {
	if v == nil || v.outcomes == nil {
		return
	}
	outcome := result.PaymentStatus
	switch {
	case err != nil:
		outcome = "error"
	case result.Changed:
		outcome = "confirmed"
	}
	v.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
