package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
	"github.com/Mayne0963/otw-sub006/internal/platform/auth"
	"github.com/Mayne0963/otw-sub006/internal/platform/pagination"
	"github.com/Mayne0963/otw-sub006/internal/services"
)

func newMeRouter(orders services.OrderService) chi.Router {
	router := chi.NewRouter()
	router.Route("/me", NewMeHandlers(nil, orders).Routes)
	return router
}

func TestMeHandlersListOrders(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		listFunc: func(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.OrderIndexEntry], error) {
			if ownerID != "user-1" {
				t.Fatalf("expected owner user-1, got %s", ownerID)
			}
			if params.PageSize != 5 {
				t.Fatalf("expected page size 5, got %d", params.PageSize)
			}
			return pagination.Page[domain.OrderIndexEntry]{
				Items: []domain.OrderIndexEntry{{
					OrderID:        "GRO-1-00000011",
					ServiceType:    domain.ServiceTypeGrocery,
					ServiceTitle:   "Weekly shop",
					EstimatedPrice: 25.99,
					PaymentMethod:  domain.PaymentMethodCard,
					Status:         domain.OrderStatusConfirmed,
					PaymentStatus:  domain.PaymentStatusPaid,
					CreatedAt:      created,
				}},
				NextPageToken: "next",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/me/orders?pageSize=5", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	newMeRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp listOrdersResponse
	decodeBody(t, rr, &resp)
	if len(resp.Items) != 1 || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %#v", resp)
	}
	item := resp.Items[0]
	if item.OrderID != "GRO-1-00000011" || item.PaymentStatus != "paid" || item.Status != "confirmed" || item.CreatedAt != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected item %#v", item)
	}
}

func TestMeHandlersListOrdersRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me/orders", nil)
	rr := httptest.NewRecorder()
	newMeRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestMeHandlersListOrdersRejectsBadPaging(t *testing.T) {
	for _, query := range []string{"pageSize=abc", "pageToken=%25%25not-base64"} {
		t.Run(query, func(t *testing.T) {
			svc := &stubOrderService{
				listFunc: func(context.Context, string, pagination.Params) (pagination.Page[domain.OrderIndexEntry], error) {
					t.Fatalf("service must not be called")
					return pagination.Page[domain.OrderIndexEntry]{}, nil
				},
			}
			req := httptest.NewRequest(http.MethodGet, "/me/orders?"+query, nil)
			req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
			rr := httptest.NewRecorder()
			newMeRouter(svc).ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
		})
	}
}
