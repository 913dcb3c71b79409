package request

import "time"

// Options configures per-request behavior at enqueue time.
type Options struct {
	// Priority is the base priority in [0,100]. Values outside the range
	// are clamped. Defaults to PriorityNormal.
	Priority int

	// MaxAttempts is the number of dispatch attempts allowed before a
	// rate-limited request is failed terminally. Zero means use the
	// gate-wide default.
	MaxAttempts int

	// Timeout is the maximum duration one upstream call may take.
	// Zero means no per-request deadline.
	Timeout time.Duration
}

// DefaultOptions returns Options with the default priority tier.
func DefaultOptions() Options {
	return Options{
		Priority: PriorityNormal,
	}
}

// Option is a functional option for configuring an enqueued request.
type Option func(*Options)

// WithPriority sets the base priority. Higher values are dispatched first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithMaxAttempts overrides the gate-wide dispatch attempt limit.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithTimeout sets the maximum duration for one upstream call.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
