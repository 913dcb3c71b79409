package gate

import (
	"log/slog"

	"github.com/MaherFayad/ga-gate/backoff"
	"github.com/MaherFayad/ga-gate/clock"
	"github.com/MaherFayad/ga-gate/middleware"
	"github.com/MaherFayad/ga-gate/quota"
	"github.com/MaherFayad/ga-gate/request"
	"github.com/MaherFayad/ga-gate/throttle"
	"github.com/MaherFayad/ga-gate/upstream"
)

// Option configures a Gate.
type Option func(*Gate) error

// WithExecutor sets the upstream executor that performs the actual API
// call. Required.
func WithExecutor(exec upstream.ExecuteFunc) Option {
	return func(g *Gate) error {
		g.exec = exec
		return nil
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(g *Gate) error {
		g.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the gate.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) error {
		g.logger = l
		return nil
	}
}

// WithWorkerCount sets the number of concurrent dispatch workers.
func WithWorkerCount(n int) Option {
	return func(g *Gate) error {
		g.config.WorkerCount = n
		return nil
	}
}

// WithQueueCapacity bounds the number of queued requests across all
// tenants. Zero means unbounded.
func WithQueueCapacity(n int) Option {
	return func(g *Gate) error {
		g.config.QueueCapacity = n
		return nil
	}
}

// WithQuotaLimits sets the per-role and per-tenant admission limits.
func WithQuotaLimits(limits quota.Limits) Option {
	return func(g *Gate) error {
		g.config.QuotaLimits = limits
		return nil
	}
}

// WithBackoffStrategy overrides the delay strategy behind per-tenant 429
// cooldowns. Defaults to exponential doubling between BaseBackoff and
// MaxBackoff; pass backoff.NewExponentialWithJitter (or Constant/Linear)
// to change the shape.
func WithBackoffStrategy(s backoff.Strategy) Option {
	return func(g *Gate) error {
		g.strategy = s
		return nil
	}
}

// WithThrottle sets the upstream pacing manager. Without one, dispatch is
// bounded only by worker count and tenant backoff.
func WithThrottle(m *throttle.Manager) Option {
	return func(g *Gate) error {
		g.throttle = m
		return nil
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clk clock.Clock) Option {
	return func(g *Gate) error {
		g.clk = clk
		return nil
	}
}

// WithStore overrides the request store backend.
func WithStore(s request.Store) Option {
	return func(g *Gate) error {
		g.store = s
		return nil
	}
}

// WithMiddleware appends middleware to the dispatch chain, inside the
// built-in recover/tracing/metrics/timeout/scope stack.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(g *Gate) error {
		g.extraMW = append(g.extraMW, mws...)
		return nil
	}
}
