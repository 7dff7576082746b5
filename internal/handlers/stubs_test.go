package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

type stubOrderService struct {
	createFunc func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	getFunc    func(ctx context.Context, orderID string) (domain.Order, error)
	listFunc   func(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOwnerOrders(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, ownerID, params)
	}
	return pagination.Page[domain.OrderIndexEntry]{}, nil
}

type stubCheckoutService struct {
	createFunc func(ctx context.Context, cmd services.CreateSessionCommand) (services.CheckoutSession, error)
}

func (s *stubCheckoutService) CreateSession(ctx context.Context, cmd services.CreateSessionCommand) (services.CheckoutSession, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.CheckoutSession{}, nil
}

type stubPaymentVerifier struct {
	verifyFunc func(ctx context.Context, sessionID, orderID string) (services.VerificationResult, error)
	calls      int
}

func (s *stubPaymentVerifier) Verify(ctx context.Context, sessionID, orderID string) (services.VerificationResult, error) {
	s.calls++
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, sessionID, orderID)
	}
	return services.VerificationResult{}, nil
}

type stubReconciler struct {
	result services.SweepResult
	err    error
}

func (s *stubReconciler) Sweep(context.Context) (services.SweepResult, error) {
	return s.result, s.err
}

type stubWebhookParser struct {
	event payments.WebhookEvent
	err   error
	sig   string
}

func (s *stubWebhookParser) Parse(_ []byte, signature string) (payments.WebhookEvent, error) {
	s.sig = signature
	return s.event, s.err
}

var (
	_ services.OrderService           = (*stubOrderService)(nil)
	_ services.CheckoutSessionGateway = (*stubCheckoutService)(nil)
	_ services.PaymentVerifier        = (*stubPaymentVerifier)(nil)
	_ services.IndexReconciler        = (*stubReconciler)(nil)
	_ WebhookParser                   = (*stubWebhookParser)(nil)
)

func sampleOrder(id string, method domain.PaymentMethod) domain.Order {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID: id,
		ServiceDetails: domain.ServiceDetails{
			Type:           domain.ServiceTypeGrocery,
			Title:          "Weekly shop",
			EstimatedPrice: 25.99,
			Grocery:        &domain.GroceryDetails{StoreName: "Corner Market", Items: []domain.GroceryItem{{Name: "milk", Quantity: 2}}},
		},
		Customer: domain.CustomerInfo{
			Name:    "Ada",
			Phone:   "555-0100",
			Email:   "ada@example.com",
			Address: "1 Main St",
		},
		PaymentMethod:  method,
		PaymentStatus:  domain.InitialPaymentStatus(method),
		Status:         domain.OrderStatusPending,
		EstimatedPrice: 25.99,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rr, &body)
	return body.Code
}

const validOrderBody = `{
	"serviceDetails": {
		"type": "grocery",
		"title": "Weekly shop",
		"description": "Fresh produce",
		"estimatedPrice": 25.99,
		"details": {"storeName": "Corner Market", "items": [{"name": "milk", "quantity": 2}]}
	},
	"customerInfo": {"name": "Ada", "phone": "555-0100", "email": "ada@example.com", "address": "1 Main St"},
	"paymentMethod": "contact",
	"cardDetails": {"number": "4242424242424242"},
	"timestamp": "2024-05-01T10:00:00Z"
}`
