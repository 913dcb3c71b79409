// Package quota enforces per-tenant request quotas over fixed rolling
// windows. Charging happens exactly once per accepted enqueue — a request
// retried after a backoff never consumes additional quota.
package quota

import (
	"sync"
	"time"

	"github.com/MaherFayad/ga-gate/clock"
	"github.com/MaherFayad/ga-gate/request"
)

// Limits configures how many requests a tenant may enqueue per window.
// Resolution order: tenant override, then role limit, then Default.
type Limits struct {
	// Default applies when neither a tenant override nor a role limit matches.
	Default int

	// PerRole maps a user role to its window limit.
	PerRole map[request.Role]int

	// PerTenant overrides the limit for specific tenants regardless of role.
	PerTenant map[string]int
}

// windowState is one tenant's counter for the current window.
type windowState struct {
	windowStart time.Time
	count       int
}

// Tracker counts enqueues per tenant over fixed windows. The window rolls
// over lazily and atomically on access. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	limits  Limits
	clk     clock.Clock
	tenants map[string]*windowState
}

// NewTracker creates a Tracker with the given window length and limits.
func NewTracker(window time.Duration, limits Limits, clk clock.Clock) *Tracker {
	return &Tracker{
		window:  window,
		limits:  limits,
		clk:     clk,
		tenants: make(map[string]*windowState),
	}
}

// Allow charges one request against the tenant's window if the limit
// permits. It returns false, without charging, when the window is exhausted.
func (t *Tracker) Allow(tenantID string, role request.Role) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.roll(tenantID)
	if st.count >= t.limitFor(tenantID, role) {
		return false
	}
	st.count++
	return true
}

// Refund returns one previously charged request to the tenant's current
// window. Used when admission fails after the quota charge (e.g. the queue
// is at capacity) so the request is never double-counted.
func (t *Tracker) Refund(tenantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.roll(tenantID)
	if st.count > 0 {
		st.count--
	}
}

// Remaining returns how many requests the tenant may still enqueue in the
// current window.
func (t *Tracker) Remaining(tenantID string, role request.Role) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.roll(tenantID)
	left := t.limitFor(tenantID, role) - st.count
	if left < 0 {
		return 0
	}
	return left
}

// WindowReset returns when the tenant's current window rolls over.
func (t *Tracker) WindowReset(tenantID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.roll(tenantID).windowStart.Add(t.window)
}

// roll returns the tenant's window state, starting a fresh window if the
// current one has elapsed. Caller must hold t.mu.
func (t *Tracker) roll(tenantID string) *windowState {
	now := t.clk.Now()
	st, ok := t.tenants[tenantID]
	if !ok {
		st = &windowState{windowStart: now}
		t.tenants[tenantID] = st
		return st
	}
	if now.Sub(st.windowStart) >= t.window {
		st.windowStart = now
		st.count = 0
	}
	return st
}

// limitFor resolves the effective limit for a tenant and role.
// Caller must hold t.mu.
func (t *Tracker) limitFor(tenantID string, role request.Role) int {
	if n, ok := t.limits.PerTenant[tenantID]; ok {
		return n
	}
	if n, ok := t.limits.PerRole[role]; ok {
		return n
	}
	return t.limits.Default
}
