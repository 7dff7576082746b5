package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

const maxVerifyRequestBody = 4 * 1024

// PaymentHandlers serves the client-side payment confirmation poll.
type PaymentHandlers struct {
	verifier services.PaymentVerifier
	limiter  rateLimiter
}

// PaymentOption customises PaymentHandlers.
type PaymentOption func(*PaymentHandlers)

// WithVerifyRateLimit caps verification polls per caller; each poll costs a processor request.
func WithVerifyRateLimit(limit int, window time.Duration, clock func() time.Time) PaymentOption {
	return func(h *PaymentHandlers) {
		h.limiter = newFixedWindowLimiter(limit, window, clock)
	}
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(verifier services.PaymentVerifier, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{verifier: verifier}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers payment endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(rateLimitMiddleware(h.limiter)).Post("/verify-payment", h.verifyPayment)
}

type verifyPaymentRequest struct {
	SessionID string `json:"sessionId"`
	OrderID   string `json:"orderId"`
}

type verifyPaymentResponse struct {
	Success       bool          `json:"success"`
	PaymentStatus string        `json:"paymentStatus"`
	Order         orderResponse `json:"order"`
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil {
		writeServiceError(ctx, w, services.ErrServiceMisconfigured)
		return
	}

	var req verifyPaymentRequest
	if err := httpx.DecodeJSON(r, maxVerifyRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}

	result, err := h.verifier.Verify(ctx, req.SessionID, req.OrderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	// An unpaid session is a normal poll outcome, not an error.
	httpx.WriteJSON(w, http.StatusOK, verifyPaymentResponse{
		Success:       result.Paid(),
		PaymentStatus: result.PaymentStatus,
		Order:         newOrderResponse(result.Order),
	})
}
