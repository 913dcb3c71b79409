package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/MaherFayad/ga-gate/request"
)

// Logging returns middleware that logs dispatch start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *request.Request, next Handler) error {
		logger.Info("dispatch started",
			slog.String("request_id", r.ID.String()),
			slog.String("endpoint", r.Endpoint),
			slog.String("tenant_id", r.TenantID),
			slog.Int("attempt", r.AttemptCount+1),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("dispatch failed",
				slog.String("request_id", r.ID.String()),
				slog.String("endpoint", r.Endpoint),
				slog.String("tenant_id", r.TenantID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("dispatch completed",
				slog.String("request_id", r.ID.String()),
				slog.String("endpoint", r.Endpoint),
				slog.String("tenant_id", r.TenantID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
