package throttle

import (
	"fmt"

	"golang.org/x/time/rate"
)

// TenantConfig defines pacing for a specific tenant on a specific endpoint.
// Use it to hold a single property's dispatch rate below its upstream
// ceiling without affecting other tenants.
type TenantConfig struct {
	// Endpoint is the upstream operation this config applies to.
	Endpoint string

	// TenantID is the tenant identifier (Request.TenantID).
	TenantID string

	// RateLimit is the sustained dispatches per second for this tenant.
	RateLimit float64

	// RateBurst is the burst size for the tenant's rate limiter.
	RateBurst int

	// MaxConcurrent limits simultaneous dispatches for this tenant on
	// this endpoint. Zero means no tenant-specific concurrency limit.
	MaxConcurrent int
}

// tenantState tracks runtime state for a single endpoint+tenant pair.
type tenantState struct {
	limiter       *rate.Limiter
	maxConcurrent int
	active        int
}

// tenantKey builds the map key for an endpoint+tenant pair.
func tenantKey(endpoint, tenantID string) string {
	return fmt.Sprintf("%s:%s", endpoint, tenantID)
}

// SetTenantConfig configures pacing for a specific tenant on a specific
// endpoint. Calling this multiple times for the same endpoint+tenant
// replaces the previous configuration.
func (m *Manager) SetTenantConfig(cfg TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey(cfg.Endpoint, cfg.TenantID)
	existing := m.tenants[key]

	ts := &tenantState{
		maxConcurrent: cfg.MaxConcurrent,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve the in-flight count across reconfiguration.
	if existing != nil {
		ts.active = existing.active
	}

	m.tenants[key] = ts
}

// TenantActiveCount returns the number of in-flight dispatches for the
// endpoint+tenant pair.
func (m *Manager) TenantActiveCount(endpoint, tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts, ok := m.tenants[tenantKey(endpoint, tenantID)]; ok {
		return ts.active
	}
	return 0
}
