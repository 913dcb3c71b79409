package backoff

import (
	"sync"
	"time"

	"github.com/MaherFayad/ga-gate/clock"
)

// tenantState tracks the cooldown of a single tenant.
// Created lazily on the first rate-limit rejection, deleted on success.
type tenantState struct {
	consecutive    int
	currentDelay   time.Duration
	nextEligibleAt time.Time
}

// Tracker is the per-tenant backoff state machine: healthy → backed_off on a
// rate-limit rejection, back to healthy when the window elapses or a dispatch
// succeeds. State is keyed by tenant, so one throttled tenant never affects
// another tenant's eligibility. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	strategy Strategy
	clk      clock.Clock
	tenants  map[string]*tenantState
}

// NewTracker creates a Tracker using the given delay strategy and clock.
func NewTracker(strategy Strategy, clk clock.Clock) *Tracker {
	return &Tracker{
		strategy: strategy,
		clk:      clk,
		tenants:  make(map[string]*tenantState),
	}
}

// OnThrottled records an upstream rate-limit rejection for the tenant,
// doubling its cooldown, and returns the instant the tenant becomes
// eligible again.
func (t *Tracker) OnThrottled(tenantID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.tenants[tenantID]
	if st == nil {
		st = &tenantState{}
		t.tenants[tenantID] = st
	}

	st.consecutive++
	st.currentDelay = t.strategy.Delay(st.consecutive)
	st.nextEligibleAt = t.clk.Now().Add(st.currentDelay)

	return st.nextEligibleAt
}

// OnSuccess resets the tenant to healthy after one successful dispatch.
func (t *Tracker) OnSuccess(tenantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.tenants, tenantID)
}

// Eligible reports whether requests for the tenant may be dispatched now.
func (t *Tracker) Eligible(tenantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.tenants[tenantID]
	if !ok {
		return true
	}
	return !t.clk.Now().Before(st.nextEligibleAt)
}

// NextEligibleAt returns the tenant's backoff deadline. The second return
// is false when the tenant is healthy (no backoff recorded).
func (t *Tracker) NextEligibleAt(tenantID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.tenants[tenantID]
	if !ok {
		return time.Time{}, false
	}
	return st.nextEligibleAt, true
}

// Consecutive returns the tenant's consecutive rate-limit rejection count.
func (t *Tracker) Consecutive(tenantID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.tenants[tenantID]
	if !ok {
		return 0
	}
	return st.consecutive
}

// EarliestWake returns the soonest future backoff deadline across all
// backed-off tenants, used by idle workers to schedule their next wake.
// The second return is false when no tenant has a pending deadline.
func (t *Tracker) EarliestWake() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	var earliest time.Time
	found := false
	for _, st := range t.tenants {
		if !st.nextEligibleAt.After(now) {
			continue
		}
		if !found || st.nextEligibleAt.Before(earliest) {
			earliest = st.nextEligibleAt
			found = true
		}
	}
	return earliest, found
}
