package middleware

import (
	"context"

	"github.com/MaherFayad/ga-gate/request"
	"github.com/MaherFayad/ga-gate/scope"
)

// Scope returns middleware that restores the caller identity from the
// request's TenantID/UserID fields into the context. This ensures the
// upstream executor sees the same identity as the original enqueue caller.
func Scope() Middleware {
	return func(ctx context.Context, r *request.Request, next Handler) error {
		ctx = scope.Restore(ctx, r.TenantID, r.UserID)
		return next(ctx)
	}
}
