// Package throttle provides client-side pacing for upstream endpoints.
// The upstream analytics API enforces per-property concurrent-request and
// QPS ceilings; pacing dispatches below those ceilings avoids rate-limit
// rejections before they happen. Backoff still governs rejections that slip
// through.
package throttle

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines pacing for a single upstream endpoint.
type Config struct {
	// Endpoint is the upstream operation this config applies to
	// (must match Request.Endpoint).
	Endpoint string

	// MaxConcurrent limits how many requests against this endpoint may be
	// in flight simultaneously across the worker pool. Zero means no
	// endpoint-specific limit.
	MaxConcurrent int

	// RateLimit is the maximum sustained dispatches per second against
	// this endpoint. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// endpointState tracks runtime state for a single endpoint.
type endpointState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

func newEndpointState(cfg Config) *endpointState {
	st := &endpointState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		st.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return st
}

// Manager controls per-endpoint and per-tenant dispatch pacing.
// It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	tenants   map[string]*tenantState
}

// NewManager creates a Manager with the given endpoint configurations.
// Endpoints not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		endpoints: make(map[string]*endpointState, len(configs)),
		tenants:   make(map[string]*tenantState),
	}
	for _, cfg := range configs {
		m.endpoints[cfg.Endpoint] = newEndpointState(cfg)
	}
	return m
}

// CanAcquire reports whether a dispatch slot for the endpoint/tenant pair
// is likely available, without consuming rate tokens or slots. The
// scheduler uses it to skip requests it could not dispatch anyway; a
// subsequent Acquire is authoritative.
func (m *Manager) CanAcquire(endpoint, tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.endpoints[endpoint]; ok {
		if st.config.MaxConcurrent > 0 && st.active >= st.config.MaxConcurrent {
			return false
		}
		if st.limiter != nil && st.limiter.Tokens() < 1 {
			return false
		}
	}

	if ts, ok := m.tenants[tenantKey(endpoint, tenantID)]; ok {
		if ts.maxConcurrent > 0 && ts.active >= ts.maxConcurrent {
			return false
		}
		if ts.limiter != nil && ts.limiter.Tokens() < 1 {
			return false
		}
	}

	return true
}

// Acquire claims a dispatch slot for the endpoint/tenant pair, consuming a
// rate token where configured. Returns false if any limit blocks the
// dispatch; nothing is consumed in that case.
func (m *Manager) Acquire(endpoint, tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.endpoints[endpoint]
	ts := m.tenants[tenantKey(endpoint, tenantID)]

	if st != nil {
		if st.config.MaxConcurrent > 0 && st.active >= st.config.MaxConcurrent {
			return false
		}
		if st.limiter != nil && st.limiter.Tokens() < 1 {
			return false
		}
	}
	if ts != nil {
		if ts.maxConcurrent > 0 && ts.active >= ts.maxConcurrent {
			return false
		}
		if ts.limiter != nil && ts.limiter.Tokens() < 1 {
			return false
		}
	}

	// All checks passed: consume tokens and slots together so a tenant
	// rejection never burns the endpoint's token.
	if st != nil {
		if st.limiter != nil && !st.limiter.Allow() {
			return false
		}
		st.active++
	}
	if ts != nil {
		if ts.limiter != nil && !ts.limiter.Allow() {
			if st != nil {
				st.active--
			}
			return false
		}
		ts.active++
	}

	return true
}

// Release returns the dispatch slot for the endpoint/tenant pair.
func (m *Manager) Release(endpoint, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.endpoints[endpoint]; ok && st.active > 0 {
		st.active--
	}
	if ts, ok := m.tenants[tenantKey(endpoint, tenantID)]; ok && ts.active > 0 {
		ts.active--
	}
}

// ActiveCount returns the number of in-flight dispatches for the endpoint.
func (m *Manager) ActiveCount(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.endpoints[endpoint]; ok {
		return st.active
	}
	return 0
}
