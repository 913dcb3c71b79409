// Package scope carries the caller's tenant and user identity through a
// context. Identity is captured at enqueue time and restored around every
// dispatch, so the upstream executor and middleware observe the same caller
// that submitted the request regardless of which worker runs it.
package scope

import "context"

type contextKey struct{}

// Identity is the multi-tenant caller identity attached to a request.
type Identity struct {
	TenantID string
	UserID   string
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// From extracts the identity from a context. The second return is false
// when no identity has been attached.
func From(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(Identity)
	return ident, ok
}

// Capture reads the identity from a context for persistence on a request.
// Returns the zero Identity when none is attached.
func Capture(ctx context.Context) Identity {
	ident, _ := From(ctx)
	return ident
}

// Restore attaches a previously captured identity to a context.
// Empty identities are not attached, so downstream code can distinguish
// an unscoped dispatch from a scoped one.
func Restore(ctx context.Context, tenantID, userID string) context.Context {
	if tenantID == "" && userID == "" {
		return ctx
	}
	return WithIdentity(ctx, Identity{TenantID: tenantID, UserID: userID})
}
