package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/MaherFayad/ga-gate/request"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *request.Request, next Handler) (retErr error) {
		defer func() {
			if p := recover(); p != nil {
				stack := string(debug.Stack())
				logger.Error("dispatch handler panicked",
					slog.String("request_id", r.ID.String()),
					slog.String("endpoint", r.Endpoint),
					slog.Any("panic", p),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic dispatching %s: %v", r.Endpoint, p)
			}
		}()
		return next(ctx)
	}
}
