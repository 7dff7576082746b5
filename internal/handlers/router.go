package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type middlewares []func(http.Handler) http.Handler

func (m middlewares) apply(r chi.Router) {
	for _, mw := range m {
		if mw != nil {
			r.Use(mw)
		}
	}
}

type routerConfig struct {
	global middlewares
	health *HealthHandlers

	orders   RouteRegistrar
	checkout RouteRegistrar
	payments RouteRegistrar
	me       RouteRegistrar
	webhooks RouteRegistrar
	internal RouteRegistrar

	mutation      middlewares
	internalGuard middlewares
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const requestTimeout = 30 * time.Second

// NewRouter builds the API router. POST /orders and POST /checkout-session run behind the mutation
// middlewares, POST /verify-payment does not. Each of the three paths answers 405 to any other
// method. Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		global: middlewares{middleware.RequestID, middleware.RealIP, middleware.Timeout(requestTimeout)},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	cfg.global.apply(r)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found",
			fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Group(func(g chi.Router) {
		cfg.mutation.apply(g)
		postOrStub(g, cfg.orders, "/orders", "orders")
		postOrStub(g, cfg.checkout, "/checkout-session", "checkout")
	})
	postOrStub(r, cfg.payments, "/verify-payment", "payments")

	mountOrStub(r, "/me", cfg.me, nil)
	mountOrStub(r, "/webhooks", cfg.webhooks, nil)
	mountOrStub(r, "/internal", cfg.internal, cfg.internalGuard)

	return r
}

func notImplemented(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented",
			fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
}

func postOrStub(r chi.Router, registrar RouteRegistrar, path, name string) {
	if registrar == nil {
		r.Post(path, notImplemented(name))
		return
	}
	registrar(r)
}

func mountOrStub(r chi.Router, prefix string, registrar RouteRegistrar, guard middlewares) {
	r.Route(prefix, func(g chi.Router) {
		guard.apply(g)
		if registrar != nil {
			registrar(g)
			return
		}
		stub := notImplemented(prefix[1:])
		g.HandleFunc("/", stub)
		g.HandleFunc("/*", stub)
		g.NotFound(stub)
		g.MethodNotAllowed(stub)
	})
}

// WithMiddlewares appends global middleware, applied after the request ID, real IP and timeout
// middlewares.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.global = append(cfg.global, mw...) }
}

// WithHealthHandlers replaces the /healthz and /readyz handlers.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithOrderRoutes sets the registrar for POST /orders.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = reg }
}

// WithCheckoutRoutes sets the registrar for POST /checkout-session.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.checkout = reg }
}

// WithPaymentRoutes sets the registrar for POST /verify-payment.
func WithPaymentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.payments = reg }
}

// WithMutationMiddlewares wraps the order-creating routes, typically with the idempotency middleware.
func WithMutationMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.mutation = append(cfg.mutation, mw...) }
}

// WithMeRoutes sets the registrar mounted under /me.
func WithMeRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.me = reg }
}

// WithWebhookRoutes sets the registrar mounted under /webhooks.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.webhooks = reg }
}

// WithInternalRoutes sets the registrar mounted under /internal.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.internal = reg }
}

// WithInternalMiddlewares guards the /internal group, typically with OIDC verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.internalGuard = append(cfg.internalGuard, mw...) }
}
