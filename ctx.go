package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// DefaultClaimsContextKey is the router locals key holding access token claims.
const DefaultClaimsContextKey = "login_claims"

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext stores the claims of a validated access token in ctx.
func WithClaimsContext(ctx context.Context, claims *LoginClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext returns the claims stored by WithClaimsContext.
func ClaimsFromContext(ctx context.Context) (*LoginClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsCtxKey).(*LoginClaims)
	return claims, ok && claims != nil
}

// RouterClaims returns the claims the bearer middleware left in the router
// locals under key.
func RouterClaims(ctx router.Context, key string) (*LoginClaims, bool) {
	if key == "" {
		key = DefaultClaimsContextKey
	}
	claims, ok := ctx.Locals(key).(*LoginClaims)
	return claims, ok && claims != nil
}

// RequestClaims looks for access token claims on the request, first in the
// standard context and then in the router locals.
func RequestClaims(ctx router.Context) (*LoginClaims, bool) {
	if claims, ok := ClaimsFromContext(ctx.Context()); ok {
		return claims, true
	}
	return RouterClaims(ctx, "")
}
