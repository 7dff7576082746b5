package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/platform/requestctx"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

// writeServiceError maps service sentinels onto the error envelope. Validation messages are
// returned to the caller; everything else is logged and surfaced with a generic message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrVerifyInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrPaymentNotCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_completed", "payment has not been completed", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrSessionMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("session_mismatch", "checkout session does not belong to this order", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	case errors.Is(err, services.ErrCheckoutSessionExists):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_session_exists", "order already has a checkout session", http.StatusConflict))
		return
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_conflict", "order payment cannot be confirmed", http.StatusConflict))
		return
	}

	logger := requestctx.Logger(ctx)
	switch {
	case errors.Is(err, services.ErrCheckoutGatewayFailed), errors.Is(err, services.ErrVerifyGatewayFailed):
		logger.Error("handlers: payment gateway failure", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "payment processor is unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrServiceMisconfigured):
		logger.Error("handlers: service misconfigured", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("service_misconfigured", "service is not configured", http.StatusInternalServerError))
	case errors.Is(err, services.ErrOrderPersistence),
		errors.Is(err, services.ErrOrderConflict),
		errors.Is(err, services.ErrCheckoutPersistence):
		logger.Error("handlers: persistence failure", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("persistence_error", "failed to store order", http.StatusInternalServerError))
	default:
		logger.Error("handlers: unexpected error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
