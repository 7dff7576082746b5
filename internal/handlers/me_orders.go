package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

// MeHandlers serves endpoints scoped to the signed-in customer.
type MeHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewMeHandlers constructs handlers for /me routes guarded by Firebase authentication.
func NewMeHandlers(authn *auth.Authenticator, orders services.OrderService) *MeHandlers {
	return &MeHandlers{authn: authn, orders: orders}
}

// Routes registers /me endpoints on a router already mounted at /me.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Get("/orders", h.listOrders)
}

type listOrdersResponse struct {
	Items         []orderIndexResponse `json:"items"`
	NextPageToken string               `json:"nextPageToken,omitempty"`
}

func (h *MeHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceError(ctx, w, services.ErrServiceMisconfigured)
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.UID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOwnerOrders(ctx, identity.UID, params)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderIndexResponse, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, newOrderIndexResponse(entry))
	}
	httpx.WriteJSON(w, http.StatusOK, listOrdersResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}
