package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Mayne0963/otw-sub006/internal/payments"
	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/platform/requestctx"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

const (
	maxWebhookBody          = 256 * 1024
	stripeSignatureHeader   = "Stripe-Signature"
	sessionOrderMetadataKey = "orderId"
)

// WebhookParser verifies and decodes processor notifications.
type WebhookParser interface {
	Parse(payload []byte, signature string) (payments.WebhookEvent, error)
}

// WebhookHandlers reconciles orders from processor events so payment is confirmed even when the
// customer never returns to the success page.
type WebhookHandlers struct {
	parser   WebhookParser
	verifier services.PaymentVerifier
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(parser WebhookParser, verifier services.PaymentVerifier) *WebhookHandlers {
	return &WebhookHandlers{parser: parser, verifier: verifier}
}

// Routes registers webhook endpoints on a router already mounted at /webhooks.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

type webhookAckResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)
	if h.parser == nil || h.verifier == nil {
		writeServiceError(ctx, w, services.ErrServiceMisconfigured)
		return
	}

	payload, err := httpx.ReadLimitedBody(r, maxWebhookBody)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}
	event, err := h.parser.Parse(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		logger.Warn("webhooks.stripe_rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	logger = logger.With(zap.String("eventId", event.ID), zap.String("eventType", event.Type))
	if !event.Settles() {
		httpx.WriteJSON(w, http.StatusOK, webhookAckResponse{Received: true, Outcome: "ignored"})
		return
	}
	orderID := strings.TrimSpace(event.Session.Metadata[sessionOrderMetadataKey])
	if orderID == "" {
		logger.Warn("webhooks.stripe_missing_order", zap.String("sessionId", event.Session.ID))
		httpx.WriteJSON(w, http.StatusOK, webhookAckResponse{Received: true, Outcome: "unmatched"})
		return
	}

	result, err := h.verifier.Verify(ctx, event.Session.ID, orderID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrSessionMismatch),
		errors.Is(err, services.ErrPaymentConflict),
		errors.Is(err, services.ErrPaymentNotCompleted):
		// Retrying cannot change these outcomes, so the event is acknowledged.
		logger.Warn("webhooks.stripe_unreconciled", zap.String("orderId", orderID), zap.Error(err))
		httpx.WriteJSON(w, http.StatusOK, webhookAckResponse{Received: true, Outcome: "unreconciled"})
		return
	default:
		writeServiceError(ctx, w, err)
		return
	}

	outcome := result.PaymentStatus
	switch {
	case result.Changed:
		outcome = "confirmed"
	case result.Paid():
		outcome = "already_paid"
	}
	logger.Info("webhooks.stripe_reconciled", zap.String("orderId", orderID), zap.String("outcome", outcome))
	httpx.WriteJSON(w, http.StatusOK, webhookAckResponse{Received: true, Outcome: outcome})
}
