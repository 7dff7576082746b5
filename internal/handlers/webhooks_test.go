package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

func newWebhookRouter(parser WebhookParser, verifier services.PaymentVerifier) chi.Router {
	router := chi.NewRouter()
	router.Route("/webhooks", NewWebhookHandlers(parser, verifier).Routes)
	return router
}

func completedEvent(orderID string) payments.WebhookEvent {
	return payments.WebhookEvent{
		ID:   "evt_1",
		Type: payments.EventCheckoutCompleted,
		Session: payments.SessionDetails{
			ID:          "cs_test_1",
			Status:      payments.SessionComplete,
			Payment:     payments.SessionPaid,
			AmountTotal: 2599,
			Metadata:    map[string]string{"orderId": orderID},
		},
	}
}

func postWebhook(router chi.Router) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func webhookOutcome(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body webhookAckResponse
	decodeBody(t, rr, &body)
	return body.Outcome
}

func TestWebhookHandlersConfirmsPaidSession(t *testing.T) {
	parser := &stubWebhookParser{event: completedEvent("GRO-1-00000012")}
	verifier := &stubPaymentVerifier{
		verifyFunc: func(ctx context.Context, sessionID, orderID string) (services.VerificationResult, error) {
			if sessionID != "cs_test_1" || orderID != "GRO-1-00000012" {
				t.Fatalf("unexpected verify args %s %s", sessionID, orderID)
			}
			order := sampleOrder(orderID, domain.PaymentMethodCard)
			order.PaymentStatus = domain.PaymentStatusPaid
			return services.VerificationResult{Order: order, PaymentStatus: services.VerifyStatusPaid, Changed: true}, nil
		},
	}

	rr := postWebhook(newWebhookRouter(parser, verifier))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if parser.sig != "t=1,v1=abc" {
		t.Fatalf("expected signature forwarded, got %q", parser.sig)
	}
	if got := webhookOutcome(t, rr); got != "confirmed" {
		t.Fatalf("expected confirmed, got %s", got)
	}
}

func TestWebhookHandlersRedeliveryIsIdempotent(t *testing.T) {
	parser := &stubWebhookParser{event: completedEvent("GRO-1-00000013")}
	verifier := &stubPaymentVerifier{
		verifyFunc: func(ctx context.Context, sessionID, orderID string) (services.VerificationResult, error) {
			order := sampleOrder(orderID, domain.PaymentMethodCard)
			order.PaymentStatus = domain.PaymentStatusPaid
			return services.VerificationResult{Order: order, PaymentStatus: services.VerifyStatusPaid}, nil
		},
	}

	rr := postWebhook(newWebhookRouter(parser, verifier))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := webhookOutcome(t, rr); got != "already_paid" {
		t.Fatalf("expected already_paid, got %s", got)
	}
}

func TestWebhookHandlersRejectsBadSignature(t *testing.T) {
	parser := &stubWebhookParser{err: fmt.Errorf("%w: bad signature", payments.ErrInvalidWebhook)}
	verifier := &stubPaymentVerifier{}

	rr := postWebhook(newWebhookRouter(parser, verifier))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if verifier.calls != 0 {
		t.Fatalf("verifier must not be called for unsigned payloads")
	}
}

func TestWebhookHandlersAcknowledgesWithoutVerifying(t *testing.T) {
	unpaid := completedEvent("GRO-1-00000014")
	unpaid.Session.Payment = payments.SessionUnpaid
	noOrder := completedEvent("")
	cases := map[string]struct {
		event   payments.WebhookEvent
		outcome string
	}{
		"other event":  {event: payments.WebhookEvent{ID: "evt_2", Type: "payment_intent.created"}, outcome: "ignored"},
		"unpaid":       {event: unpaid, outcome: "ignored"},
		"missing meta": {event: noOrder, outcome: "unmatched"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			verifier := &stubPaymentVerifier{}
			rr := postWebhook(newWebhookRouter(&stubWebhookParser{event: tc.event}, verifier))

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rr.Code)
			}
			if got := webhookOutcome(t, rr); got != tc.outcome {
				t.Fatalf("expected %s, got %s", tc.outcome, got)
			}
			if verifier.calls != 0 {
				t.Fatalf("verifier must not be called")
			}
		})
	}
}

func TestWebhookHandlersVerifyFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "unknown order", err: services.ErrOrderNotFound, status: http.StatusOK},
		{name: "mismatch", err: services.ErrSessionMismatch, status: http.StatusOK},
		{name: "gateway", err: fmt.Errorf("%w: %w", services.ErrVerifyGatewayFailed, payments.ErrGatewayTimeout), status: http.StatusBadGateway},
		{name: "store", err: fmt.Errorf("%w: tx", services.ErrOrderPersistence), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &stubPaymentVerifier{
				verifyFunc: func(context.Context, string, string) (services.VerificationResult, error) {
					return services.VerificationResult{}, tc.err
				},
			}
			rr := postWebhook(newWebhookRouter(&stubWebhookParser{event: completedEvent("GRO-1-00000015")}, verifier))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}
