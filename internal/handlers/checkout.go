package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

const (
	maxCheckoutRequestBody = 32 * 1024
	idempotencyKeyHeader   = "Idempotency-Key"
)

// CheckoutURLs are the hosted checkout redirect targets.
type CheckoutURLs struct {
	SuccessURL string
	CancelURL  string
}

// CheckoutHandlers opens hosted checkout sessions, creating the card order when needed.
type CheckoutHandlers struct {
	orders   services.OrderService
	checkout services.CheckoutSessionGateway
	urls     CheckoutURLs
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(orders services.OrderService, checkout services.CheckoutSessionGateway, urls CheckoutURLs) *CheckoutHandlers {
	return &CheckoutHandlers{
		orders:   orders,
		checkout: checkout,
		urls:     urls,
	}
}

// Routes registers checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout-session", h.createSession)
}

type checkoutSessionRequest struct {
	ServiceDetails serviceDetailsRequest `json:"serviceDetails"`
	CustomerInfo   customerInfoPayload   `json:"customerInfo"`
	Amount         json.Number           `json:"amount"`
	OrderID        string                `json:"orderId,omitempty"`
}

type checkoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	OrderID   string `json:"orderId"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil || h.checkout == nil {
		writeServiceError(ctx, w, services.ErrServiceMisconfigured)
		return
	}

	var req checkoutSessionRequest
	if err := httpx.DecodeJSON(r, maxCheckoutRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}

	amount, err := domain.ParseMinorUnits(req.Amount)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be a positive integer in minor currency units", http.StatusBadRequest))
		return
	}

	ownerID := auth.AuthResultFromContext(ctx).OwnerID()
	var order domain.Order
	if orderID := strings.TrimSpace(req.OrderID); orderID != "" {
		order, err = h.orders.GetOrder(ctx, orderID)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		// Another caller's order is reported as missing.
		if order.OwnerID != "" && order.OwnerID != ownerID {
			writeServiceError(ctx, w, services.ErrOrderNotFound)
			return
		}
	} else {
		details, err := req.ServiceDetails.toDomain()
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		order, err = h.orders.CreateOrder(ctx, services.CreateOrderCommand{
			ServiceDetails: details,
			Customer:       req.CustomerInfo.toDomain(),
			PaymentMethod:  domain.PaymentMethodCard,
			OwnerID:        ownerID,
			Metadata:       requestMetadata(r),
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
	}

	session, err := h.checkout.CreateSession(ctx, services.CreateSessionCommand{
		Order:          order,
		Amount:         amount.Int64(),
		SuccessURL:     h.urls.SuccessURL,
		CancelURL:      h.urls.CancelURL,
		IdempotencyKey: gatewayIdempotencyKey(r, order.ID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := checkoutSessionResponse{
		SessionID: session.SessionID,
		URL:       session.RedirectURL,
		OrderID:   session.OrderID,
	}
	if !session.ExpiresAt.IsZero() {
		payload.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// gatewayIdempotencyKey scopes the client's key to the order so processor retries reuse the session.
func gatewayIdempotencyKey(r *http.Request, orderID string) string {
	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if key == "" {
		return ""
	}
	return "checkout:" + orderID + ":" + key
}
