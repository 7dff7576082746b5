package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/platform/observability"
	"github.com/Mayne0963/otw-sub006/internal/platform/requestctx"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

// InternalHandlers serves maintenance endpoints invoked by Cloud Scheduler.
type InternalHandlers struct {
	reconciler services.IndexReconciler
}

// NewInternalHandlers constructs internal handlers. OIDC verification is applied by the router.
func NewInternalHandlers(reconciler services.IndexReconciler) *InternalHandlers {
	return &InternalHandlers{reconciler: reconciler}
}

// Routes registers internal endpoints on a router already mounted at /internal.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reconcile/order-index", h.reconcileOrderIndex)
}

type sweepResponse struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

func (h *InternalHandlers) reconcileOrderIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		writeServiceError(ctx, w, services.ErrServiceMisconfigured)
		return
	}

	result, err := h.reconciler.Sweep(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	fields := []zap.Field{
		zap.Int("scanned", result.Scanned),
		zap.Int("repaired", result.Repaired),
		zap.Int("failed", result.Failed),
	}
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		fields = append(fields, zap.String("caller", observability.MaskEmail(caller.Email)))
	}
	requestctx.Logger(ctx).Info("internal.order_index_swept", fields...)

	httpx.WriteJSON(w, http.StatusOK, sweepResponse{
		Scanned:  result.Scanned,
		Repaired: result.Repaired,
		Failed:   result.Failed,
	})
}
