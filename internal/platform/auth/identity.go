package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Identity captures the authenticated principal extracted from a Firebase ID token.
type Identity struct {
	UID           string
	Email         string
	Name          string
	EmailVerified bool

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// AuthKind distinguishes the three possible outcomes of resolving a caller.
type AuthKind int

const (
	// AuthGuest means no credential was presented.
	AuthGuest AuthKind = iota
	// AuthAuthenticated means a credential was presented and verified.
	AuthAuthenticated
	// AuthInvalid means a credential was presented but could not be verified.
	AuthInvalid
)

// String implements fmt.Stringer.
func (k AuthKind) String() string {
	switch k {
	case AuthAuthenticated:
		return "authenticated"
	case AuthInvalid:
		return "invalid"
	default:
		return "guest"
	}
}

// InvalidReason explains why a presented credential was rejected.
type InvalidReason string

const (
	ReasonMalformed   InvalidReason = "malformed"
	ReasonExpired     InvalidReason = "expired"
	ReasonRevoked     InvalidReason = "revoked"
	ReasonInvalid     InvalidReason = "invalid"
	ReasonUnavailable InvalidReason = "verifier_unavailable"
)

// AuthResult is the outcome of IdentityResolver.Resolve. Callers decide how to treat AuthInvalid.
type AuthResult struct {
	Kind     AuthKind
	Identity *Identity
	Reason   InvalidReason
}

// Authenticated wraps a verified identity.
func Authenticated(identity *Identity) AuthResult {
	if identity == nil || identity.UID == "" {
		return Guest()
	}
	return AuthResult{Kind: AuthAuthenticated, Identity: identity}
}

// Guest is the result for callers without a credential.
func Guest() AuthResult {
	return AuthResult{Kind: AuthGuest}
}

// Invalid is the result for callers whose credential failed verification.
func Invalid(reason InvalidReason) AuthResult {
	return AuthResult{Kind: AuthInvalid, Reason: reason}
}

// IsAuthenticated reports whether an identity was verified.
func (r AuthResult) IsAuthenticated() bool {
	return r.Kind == AuthAuthenticated && r.Identity != nil
}

// OwnerID returns the identity UID or an empty string for guests and invalid credentials.
func (r AuthResult) OwnerID() string {
	if !r.IsAuthenticated() {
		return ""
	}
	return r.Identity.UID
}

type contextKey string

const (
	identityContextKey   contextKey = "github.com/Mayne0963/otw-sub006/internal/platform/auth/identity"
	authResultContextKey contextKey = "github.com/Mayne0963/otw-sub006/internal/platform/auth/result"
)

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// WithAuthResult stores the resolution outcome, and the identity when authenticated.
func WithAuthResult(ctx context.Context, result AuthResult) context.Context {
	ctx = context.WithValue(ctx, authResultContextKey, result)
	if result.IsAuthenticated() {
		ctx = WithIdentity(ctx, result.Identity)
	}
	return ctx
}

// AuthResultFromContext returns the stored outcome. Contexts that only carry an identity are
// reported as authenticated; everything else is a guest.
func AuthResultFromContext(ctx context.Context) AuthResult {
	if result, ok := ctx.Value(authResultContextKey).(AuthResult); ok {
		return result
	}
	if identity, ok := IdentityFromContext(ctx); ok {
		return Authenticated(identity)
	}
	return Guest()
}
