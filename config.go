package gate

import (
	"time"

	"github.com/MaherFayad/ga-gate/quota"
	"github.com/MaherFayad/ga-gate/request"
)

// Config holds configuration for the Gate.
type Config struct {
	// WorkerCount is the number of concurrent dispatch workers.
	WorkerCount int

	// QueueCapacity bounds the number of queued (pending + deferred)
	// requests across all tenants. Zero means unbounded.
	QueueCapacity int

	// MaxAttempts is the default number of dispatch attempts before a
	// rate-limited request fails terminally. Per-request overrides apply.
	MaxAttempts int

	// BaseBackoff is a tenant's cooldown after its first upstream 429.
	BaseBackoff time.Duration

	// MaxBackoff caps the per-tenant exponential cooldown.
	MaxBackoff time.Duration

	// AgingRate is the priority points a waiting request gains per second.
	AgingRate float64

	// AgingCap bounds the total aging bonus so old low-priority requests
	// cannot permanently outrank fresh critical ones.
	AgingCap int

	// AvgProcessingTime seeds wait estimates until enough dispatch
	// latencies have been measured.
	AvgProcessingTime time.Duration

	// QuotaWindow is the fixed window over which tenant quotas apply.
	QuotaWindow time.Duration

	// QuotaLimits defines per-role and per-tenant admission limits.
	QuotaLimits quota.Limits

	// RetentionTTL is how long a finished request's result is retained
	// when nobody retrieves it.
	RetentionTTL time.Duration

	// SweepInterval is how often the janitor evicts expired results.
	SweepInterval time.Duration

	// RetryDelay is how long a worker waits after losing the post-claim
	// throttle race.
	RetryDelay time.Duration

	// ShutdownTimeout bounds graceful drain when the caller's context has
	// no deadline of its own.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:       5,
		QueueCapacity:     0,
		MaxAttempts:       5,
		BaseBackoff:       2 * time.Second,
		MaxBackoff:        60 * time.Second,
		AgingRate:         1.0 / 30,
		AgingCap:          20,
		AvgProcessingTime: 30 * time.Second,
		QuotaWindow:       time.Hour,
		QuotaLimits: quota.Limits{
			Default: 50,
			PerRole: map[request.Role]int{
				request.RoleOwner:  200,
				request.RoleAdmin:  100,
				request.RoleMember: 50,
				request.RoleViewer: 20,
			},
		},
		RetentionTTL:    15 * time.Minute,
		SweepInterval:   time.Minute,
		RetryDelay:      100 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}
