package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

func newPaymentRouter(verifier services.PaymentVerifier, opts ...PaymentOption) chi.Router {
	router := chi.NewRouter()
	NewPaymentHandlers(verifier, opts...).Routes(router)
	return router
}

func verifyRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/verify-payment", strings.NewReader(body))
	req.RemoteAddr = "198.51.100.4:443"
	return req
}

func TestPaymentHandlersVerifyPaid(t *testing.T) {
	order := sampleOrder("GRO-1-0000000F", domain.PaymentMethodCard)
	paidAt := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	price := 25.99
	order.PaymentStatus = domain.PaymentStatusPaid
	order.Status = domain.OrderStatusConfirmed
	order.ActualPrice = &price
	order.PaymentCompletedAt = &paidAt
	order.ExternalSessionID = "cs_test_1"

	verifier := &stubPaymentVerifier{
		verifyFunc: func(ctx context.Context, sessionID, orderID string) (services.VerificationResult, error) {
			if sessionID != "cs_test_1" || orderID != order.ID {
				t.Fatalf("unexpected verify args %s %s", sessionID, orderID)
			}
			return services.VerificationResult{Order: order, PaymentStatus: services.VerifyStatusPaid, Changed: true}, nil
		},
	}

	rr := httptest.NewRecorder()
	newPaymentRouter(verifier).ServeHTTP(rr, verifyRequest(`{"sessionId":"cs_test_1","orderId":"GRO-1-0000000F"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp verifyPaymentResponse
	decodeBody(t, rr, &resp)
	if !resp.Success || resp.PaymentStatus != "paid" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Order.ActualPrice == nil || *resp.Order.ActualPrice != 25.99 {
		t.Fatalf("expected actual price 25.99, got %v", resp.Order.ActualPrice)
	}
	if resp.Order.PaymentCompletedAt == nil || *resp.Order.PaymentCompletedAt != "2024-05-01T11:00:00Z" {
		t.Fatalf("unexpected paymentCompletedAt %v", resp.Order.PaymentCompletedAt)
	}
	if resp.Order.Status != "confirmed" {
		t.Fatalf("expected confirmed, got %s", resp.Order.Status)
	}
}

func TestPaymentHandlersVerifyBeforePayment(t *testing.T) {
	order := sampleOrder("GRO-1-00000010", domain.PaymentMethodCard)
	verifier := &stubPaymentVerifier{
		verifyFunc: func(context.Context, string, string) (services.VerificationResult, error) {
			return services.VerificationResult{Order: order, PaymentStatus: services.VerifyStatusProcessing}, nil
		},
	}

	rr := httptest.NewRecorder()
	newPaymentRouter(verifier).ServeHTTP(rr, verifyRequest(`{"sessionId":"cs_test_1","orderId":"GRO-1-00000010"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp verifyPaymentResponse
	decodeBody(t, rr, &resp)
	if resp.Success || resp.PaymentStatus != "processing" || resp.Order.PaymentStatus != "processing" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Order.ActualPrice != nil {
		t.Fatalf("unpaid order must not carry an actual price")
	}
}

func TestPaymentHandlersMapsVerifyErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("%w: sessionId and orderId are required", services.ErrVerifyInvalidInput), status: http.StatusBadRequest, code: "invalid_request"},
		{err: fmt.Errorf("%w: %v", services.ErrPaymentNotCompleted, payments.ErrSessionNotFound), status: http.StatusBadRequest, code: "payment_not_completed"},
		{err: services.ErrSessionMismatch, status: http.StatusBadRequest, code: "session_mismatch"},
		{err: services.ErrOrderNotFound, status: http.StatusNotFound, code: "order_not_found"},
		{err: fmt.Errorf("%w: refunded", services.ErrPaymentConflict), status: http.StatusConflict, code: "payment_conflict"},
		{err: fmt.Errorf("%w: %w", services.ErrVerifyGatewayFailed, payments.ErrGatewayUnavailable), status: http.StatusBadGateway, code: "payment_gateway_error"},
		{err: fmt.Errorf("%w: tx", services.ErrOrderPersistence), status: http.StatusInternalServerError, code: "persistence_error"},
		{err: services.ErrServiceMisconfigured, status: http.StatusInternalServerError, code: "service_misconfigured"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			verifier := &stubPaymentVerifier{
				verifyFunc: func(context.Context, string, string) (services.VerificationResult, error) {
					return services.VerificationResult{}, tc.err
				},
			}
			rr := httptest.NewRecorder()
			newPaymentRouter(verifier).ServeHTTP(rr, verifyRequest(`{"sessionId":"cs","orderId":"o"}`))

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if got := errorCode(t, rr); got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
		})
	}
}

func TestPaymentHandlersRateLimitsPolling(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	verifier := &stubPaymentVerifier{
		verifyFunc: func(context.Context, string, string) (services.VerificationResult, error) {
			return services.VerificationResult{Order: sampleOrder("o", domain.PaymentMethodCard), PaymentStatus: services.VerifyStatusProcessing}, nil
		},
	}
	router := newPaymentRouter(verifier, WithVerifyRateLimit(2, time.Minute, func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, verifyRequest(`{"sessionId":"cs","orderId":"o"}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("poll %d: expected status 200, got %d", i, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, verifyRequest(`{"sessionId":"cs","orderId":"o"}`))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
	if verifier.calls != 2 {
		t.Fatalf("expected limited poll to skip the verifier, got %d calls", verifier.calls)
	}

	now = now.Add(time.Minute)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, verifyRequest(`{"sessionId":"cs","orderId":"o"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rr.Code)
	}
}
