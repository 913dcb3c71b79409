package middleware

import (
	"context"
	"log/slog"

	"github.com/MaherFayad/ga-gate/request"
)

// Timeout returns middleware that enforces a per-request dispatch deadline.
// If the request has a non-zero Timeout, a context.WithTimeout wraps the
// handler call. When the deadline is exceeded the context is cancelled and
// the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *request.Request, next Handler) error {
		if r.Timeout > 0 {
			logger.Debug("dispatch timeout set",
				slog.String("request_id", r.ID.String()),
				slog.Duration("timeout", r.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
