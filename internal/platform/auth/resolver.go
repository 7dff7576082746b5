package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/Mayne0963/otw-sub006/internal/platform/requestctx"
)

const (
	defaultEmailClaim    = "email"
	defaultNameClaim     = "name"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// IdentityResolver turns an optional bearer token into an AuthResult. It never fails the request.
type IdentityResolver struct {
	verifier TokenVerifier
	timeout  time.Duration
}

// ResolverOption customises IdentityResolver.
type ResolverOption func(*IdentityResolver)

// WithResolveTimeout bounds each verification call.
func WithResolveTimeout(d time.Duration) ResolverOption {
	return func(r *IdentityResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewIdentityResolver constructs a resolver. A nil verifier yields Invalid for every presented token.
func NewIdentityResolver(verifier TokenVerifier, opts ...ResolverOption) *IdentityResolver {
	r := &IdentityResolver{verifier: verifier, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve verifies the token. Empty tokens are guests; verification failures are logged and
// reported as Invalid with a reason.
func (r *IdentityResolver) Resolve(ctx context.Context, token string) AuthResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return Guest()
	}
	if r == nil || r.verifier == nil {
		logInvalid(ctx, ReasonUnavailable, errors.New("token verifier not configured"))
		return Invalid(ReasonUnavailable)
	}

	verifyCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	decoded, err := r.verifier.VerifyIDToken(verifyCtx, token)
	if err != nil {
		reason := classifyVerificationError(err)
		logInvalid(ctx, reason, err)
		return Invalid(reason)
	}
	if decoded == nil || strings.TrimSpace(decoded.UID) == "" {
		logInvalid(ctx, ReasonInvalid, errors.New("token has no subject"))
		return Invalid(ReasonInvalid)
	}

	return Authenticated(&Identity{
		UID:           decoded.UID,
		Email:         claimAsString(decoded.Claims, defaultEmailClaim),
		Name:          claimAsString(decoded.Claims, defaultNameClaim),
		EmailVerified: claimAsBool(decoded.Claims, "email_verified"),
		token:         decoded,
	})
}

func classifyVerificationError(err error) InvalidReason {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return ReasonExpired
	case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
		return ReasonRevoked
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		return ReasonInvalid
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonUnavailable
	default:
		return ReasonInvalid
	}
}

func logInvalid(ctx context.Context, reason InvalidReason, err error) {
	requestctx.Logger(ctx).Warn("auth.token_invalid",
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
}

func claimAsString(claims map[string]interface{}, key string) string {
	if value, ok := claims[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func claimAsBool(claims map[string]interface{}, key string) bool {
	value, _ := claims[key].(bool)
	return value
}
