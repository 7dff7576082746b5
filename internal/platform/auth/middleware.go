package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Mayne0963/otw-sub006/internal/platform/config"
	"github.com/Mayne0963/otw-sub006/internal/platform/httpx"
	"github.com/Mayne0963/otw-sub006/internal/platform/requestctx"
)

// Authenticator wires the IdentityResolver into HTTP middleware.
type Authenticator struct {
	resolver *IdentityResolver
	policy   config.InvalidTokenPolicy
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithInvalidTokenPolicy sets how optional-auth routes treat credentials that fail verification.
func WithInvalidTokenPolicy(policy config.InvalidTokenPolicy) Option {
	return func(a *Authenticator) {
		switch policy {
		case config.InvalidTokenDowngrade, config.InvalidTokenReject:
			a.policy = policy
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(resolver *IdentityResolver, opts ...Option) *Authenticator {
	a := &Authenticator{
		resolver: resolver,
		policy:   config.InvalidTokenDowngrade,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// ResolveIdentity attaches an AuthResult to every request without requiring a credential.
// Under the downgrade policy an invalid credential continues as a guest; under reject it is a 401.
func (a *Authenticator) ResolveIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			result := a.resolve(r)

			if result.Kind == AuthInvalid {
				if a != nil && a.policy == config.InvalidTokenReject {
					writeInvalidCredential(w, r, result.Reason)
					return
				}
				requestctx.Logger(ctx).Info("auth.token_downgraded", zap.String("reason", string(result.Reason)))
			}
			annotateCaller(ctx, result)

			next.ServeHTTP(w, r.WithContext(WithAuthResult(ctx, result)))
		})
	}
}

// RequireFirebaseAuth rejects requests that do not carry a verified bearer token.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := extractBearerToken(r.Header.Get("Authorization")); !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			result := a.resolve(r)
			if !result.IsAuthenticated() {
				writeInvalidCredential(w, r, result.Reason)
				return
			}
			annotateCaller(r.Context(), result)
			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), result)))
		})
	}
}

func annotateCaller(ctx context.Context, result AuthResult) {
	requestctx.Annotate(ctx, "caller", result.Kind.String())
	if uid := result.OwnerID(); uid != "" {
		requestctx.Annotate(ctx, "user_id", uid)
	}
}

func (a *Authenticator) resolve(r *http.Request) AuthResult {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return Guest()
	}
	token, ok := extractBearerToken(header)
	if !ok {
		requestctx.Logger(r.Context()).Warn("auth.token_invalid", zap.String("reason", string(ReasonMalformed)))
		return Invalid(ReasonMalformed)
	}
	if a == nil || a.resolver == nil {
		return Invalid(ReasonUnavailable)
	}
	return a.resolver.Resolve(r.Context(), token)
}

func writeInvalidCredential(w http.ResponseWriter, r *http.Request, reason InvalidReason) {
	switch reason {
	case ReasonExpired:
		httpx.WriteError(r.Context(), w, httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized))
	case ReasonUnavailable:
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized))
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
