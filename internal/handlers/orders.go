package handlers

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

const (
	maxOrderRequestBody = 32 * 1024
	defaultOrderSource  = "web"
	orderSourceHeader   = "X-Order-Source"
)

// OrderHandlers exposes order creation to guests and signed-in customers.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders", h.createOrder)
}

type createOrderRequest struct {
	ServiceDetails serviceDetailsRequest `json:"serviceDetails"`
	CustomerInfo   customerInfoPayload   `json:"customerInfo"`
	PaymentMethod  string                `json:"paymentMethod"`
	// CardDetails is accepted for client compatibility and never read.
	CardDetails json.RawMessage `json:"cardDetails,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

type createOrderResponse struct {
	Success bool          `json:"success"`
	OrderID string        `json:"orderId"`
	Message string        `json:"message"`
	Order   orderResponse `json:"order"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceError(ctx, w, services.ErrServiceMisconfigured)
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, maxOrderRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}

	details, err := req.ServiceDetails.toDomain()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		ServiceDetails: details,
		Customer:       req.CustomerInfo.toDomain(),
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		OwnerID:        auth.AuthResultFromContext(ctx).OwnerID(),
		Metadata:       requestMetadata(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, createOrderResponse{
		Success: true,
		OrderID: order.ID,
		Message: orderCreatedMessage(order),
		Order:   newOrderResponse(order),
	})
}

func orderCreatedMessage(order domain.Order) string {
	if order.PaymentMethod == domain.PaymentMethodCard {
		return fmt.Sprintf("Order %s created; complete payment to confirm it", order.ID)
	}
	return fmt.Sprintf("Order %s created; we will contact you to confirm it", order.ID)
}

func requestMetadata(r *http.Request) domain.OrderMetadata {
	source := strings.TrimSpace(r.Header.Get(orderSourceHeader))
	if source == "" {
		source = defaultOrderSource
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return domain.OrderMetadata{
		Source:    source,
		UserAgent: r.UserAgent(),
		ClientIP:  ip,
	}
}
