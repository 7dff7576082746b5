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
	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

var testCheckoutURLs = CheckoutURLs{
	SuccessURL: "https://otw.example/checkout/success?session_id={CHECKOUT_SESSION_ID}",
	CancelURL:  "https://otw.example/checkout/cancel",
}

func newCheckoutRouter(orders services.OrderService, checkout services.CheckoutSessionGateway) chi.Router {
	router := chi.NewRouter()
	NewCheckoutHandlers(orders, checkout, testCheckoutURLs).Routes(router)
	return router
}

func checkoutBody(amount string, extra string) string {
	body := `{
		"serviceDetails": {"type": "package", "title": "Parcel", "estimatedPrice": 12.5,
			"details": {"pickupAddress": "1 Main St", "dropoffAddress": "2 High St", "weightKg": 1.2}},
		"customerInfo": {"name": "Ada", "phone": "555-0100", "email": "ada@example.com", "address": "1 Main St"},
		"amount": ` + amount
	if extra != "" {
		body += ", " + extra
	}
	return body + "}"
}

func TestCheckoutHandlersCreatesCardOrderAndSession(t *testing.T) {
	var created services.CreateOrderCommand
	orders := &stubOrderService{
		createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			created = cmd
			return sampleOrder("PKG-1-0000000A", cmd.PaymentMethod), nil
		},
	}
	var session services.CreateSessionCommand
	checkout := &stubCheckoutService{
		createFunc: func(ctx context.Context, cmd services.CreateSessionCommand) (services.CheckoutSession, error) {
			session = cmd
			return services.CheckoutSession{
				SessionID:   "cs_test_1",
				RedirectURL: "https://checkout.stripe.test/cs_test_1",
				OrderID:     cmd.Order.ID,
				ExpiresAt:   time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(checkoutBody("2599", "")))
	req.Header.Set("Idempotency-Key", "key-1")
	rr := httptest.NewRecorder()
	newCheckoutRouter(orders, checkout).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if created.PaymentMethod != domain.PaymentMethodCard {
		t.Fatalf("expected card order, got %q", created.PaymentMethod)
	}
	if created.ServiceDetails.Package == nil || created.ServiceDetails.Package.WeightKg != 1.2 {
		t.Fatalf("expected package payload, got %#v", created.ServiceDetails.Package)
	}
	if session.Amount != 2599 {
		t.Fatalf("expected amount 2599, got %d", session.Amount)
	}
	if session.SuccessURL != testCheckoutURLs.SuccessURL || session.CancelURL != testCheckoutURLs.CancelURL {
		t.Fatalf("unexpected redirect urls %#v", session)
	}
	if session.IdempotencyKey != "checkout:PKG-1-0000000A:key-1" {
		t.Fatalf("unexpected gateway idempotency key %q", session.IdempotencyKey)
	}

	var resp checkoutSessionResponse
	decodeBody(t, rr, &resp)
	if resp.SessionID != "cs_test_1" || resp.URL != "https://checkout.stripe.test/cs_test_1" || resp.OrderID != "PKG-1-0000000A" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.ExpiresAt != "2024-05-02T10:00:00Z" {
		t.Fatalf("unexpected expiresAt %q", resp.ExpiresAt)
	}
}

func TestCheckoutHandlersRejectsInvalidAmounts(t *testing.T) {
	for _, amount := range []string{"0", "-1", "25.99", `"abc"`, "null"} {
		t.Run(amount, func(t *testing.T) {
			orders := &stubOrderService{
				createFunc: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
					t.Fatalf("order must not be created for amount %s", amount)
					return domain.Order{}, nil
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(checkoutBody(amount, "")))
			rr := httptest.NewRecorder()
			newCheckoutRouter(orders, &stubCheckoutService{}).ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCheckoutHandlersAcceptsSmallestAmount(t *testing.T) {
	orders := &stubOrderService{
		createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			return sampleOrder("PKG-1-0000000B", cmd.PaymentMethod), nil
		},
	}
	checkout := &stubCheckoutService{
		createFunc: func(ctx context.Context, cmd services.CreateSessionCommand) (services.CheckoutSession, error) {
			if cmd.Amount != 1 {
				t.Fatalf("expected amount 1, got %d", cmd.Amount)
			}
			return services.CheckoutSession{SessionID: "cs_1", OrderID: cmd.Order.ID}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(checkoutBody("1", "")))
	rr := httptest.NewRecorder()
	newCheckoutRouter(orders, checkout).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCheckoutHandlersUsesExistingOrder(t *testing.T) {
	existing := sampleOrder("GRO-1-0000000C", domain.PaymentMethodCard)
	existing.OwnerID = "user-1"
	orders := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
			t.Fatalf("existing order must be reused")
			return domain.Order{}, nil
		},
		getFunc: func(ctx context.Context, orderID string) (domain.Order, error) {
			if orderID != existing.ID {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return existing, nil
		},
	}
	checkout := &stubCheckoutService{
		createFunc: func(ctx context.Context, cmd services.CreateSessionCommand) (services.CheckoutSession, error) {
			if cmd.Order.ID != existing.ID {
				t.Fatalf("expected session for existing order, got %s", cmd.Order.ID)
			}
			return services.CheckoutSession{SessionID: "cs_2", OrderID: cmd.Order.ID}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(checkoutBody("2599", `"orderId": "GRO-1-0000000C"`)))
	req = req.WithContext(auth.WithAuthResult(req.Context(), auth.Authenticated(&auth.Identity{UID: "user-1"})))
	rr := httptest.NewRecorder()
	newCheckoutRouter(orders, checkout).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCheckoutHandlersHidesOtherOwnersOrders(t *testing.T) {
	existing := sampleOrder("GRO-1-0000000D", domain.PaymentMethodCard)
	existing.OwnerID = "someone-else"
	orders := &stubOrderService{
		getFunc: func(context.Context, string) (domain.Order, error) { return existing, nil },
	}
	checkout := &stubCheckoutService{
		createFunc: func(context.Context, services.CreateSessionCommand) (services.CheckoutSession, error) {
			t.Fatalf("gateway must not be called")
			return services.CheckoutSession{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(checkoutBody("2599", `"orderId": "GRO-1-0000000D"`)))
	rr := httptest.NewRecorder()
	newCheckoutRouter(orders, checkout).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCheckoutHandlersMapsSessionErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("%w: order x", services.ErrCheckoutSessionExists), status: http.StatusConflict, code: "checkout_session_exists"},
		{err: fmt.Errorf("%w: %w", services.ErrCheckoutGatewayFailed, payments.ErrGatewayTimeout), status: http.StatusBadGateway, code: "payment_gateway_error"},
		{err: fmt.Errorf("%w: attach", services.ErrCheckoutPersistence), status: http.StatusInternalServerError, code: "persistence_error"},
		{err: fmt.Errorf("%w: customer", services.ErrCheckoutInvalidInput), status: http.StatusBadRequest, code: "invalid_request"},
		{err: services.ErrServiceMisconfigured, status: http.StatusInternalServerError, code: "service_misconfigured"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			orders := &stubOrderService{
				createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
					return sampleOrder("PKG-1-0000000E", cmd.PaymentMethod), nil
				},
			}
			checkout := &stubCheckoutService{
				createFunc: func(context.Context, services.CreateSessionCommand) (services.CheckoutSession, error) {
					return services.CheckoutSession{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(checkoutBody("2599", "")))
			rr := httptest.NewRecorder()
			newCheckoutRouter(orders, checkout).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if got := errorCode(t, rr); got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
		})
	}
}

func TestCheckoutHandlersOrderValidationFailureSkipsGateway(t *testing.T) {
	orders := &stubOrderService{
		createFunc: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: customerInfo.name is required", services.ErrOrderInvalidInput)
		},
	}
	checkout := &stubCheckoutService{
		createFunc: func(context.Context, services.CreateSessionCommand) (services.CheckoutSession, error) {
			t.Fatalf("gateway must not be called")
			return services.CheckoutSession{}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/checkout-session", strings.NewReader(checkoutBody("2599", "")))
	rr := httptest.NewRecorder()
	newCheckoutRouter(orders, checkout).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
