package auth

import "context"

type identityKey struct{}

// ContextKeyIdentity is exported for tests that need context.WithValue.
var ContextKeyIdentity = identityKey{}

// WithIdentity attaches verified claims to the request context.
func WithIdentity(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, claims)
}

// IdentityFromContext retrieves the verified claims attached by RequireAuth.
func IdentityFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ContextKeyIdentity).(*Claims)
	return claims, ok
}
