// Package memory provides the in-memory request.Store. It is the single
// consistency domain for the registry and the priority queue: claims,
// position queries, and counts all execute under one lock, so the order a
// position query reports is exactly the order workers dispatch in.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MaherFayad/ga-gate/id"
	"github.com/MaherFayad/ga-gate/request"
)

var _ request.Store = (*Store)(nil)

// Defaults for the effective-score aging bonus: one priority point per 30
// seconds of wait, capped at 20 points.
const (
	DefaultAgingRate = 1.0 / 30
	DefaultAgingCap  = 20
)

// Store is a fully in-memory implementation of request.Store.
// Safe for concurrent access. Requests are stored by ID; ordering is
// computed at selection time from the shared scoring function, never stored.
type Store struct {
	mu sync.RWMutex

	requests map[string]*request.Request
	done     map[string]chan struct{}

	agingRate float64
	agingCap  int
}

// Option configures a Store.
type Option func(*Store)

// WithScoring sets the aging rate (priority points per second of wait) and
// the aging cap used by Claim and Position.
func WithScoring(rate float64, cap int) Option {
	return func(s *Store) {
		s.agingRate = rate
		s.agingCap = cap
	}
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		requests:  make(map[string]*request.Request),
		done:      make(map[string]chan struct{}),
		agingRate: DefaultAgingRate,
		agingCap:  DefaultAgingCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

// Enqueue registers a new request in pending state.
func (s *Store) Enqueue(_ context.Context, r *request.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.ID.String()
	if _, exists := s.requests[key]; exists {
		return request.ErrExists
	}

	cp := *r
	cp.State = request.StatePending
	s.requests[key] = &cp
	s.done[key] = make(chan struct{})
	return nil
}

// Get retrieves a copy of a request by ID.
func (s *Store) Get(_ context.Context, rid id.RequestID) (*request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[rid.String()]
	if !ok {
		return nil, request.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Update persists changes to an existing request. A transition into a
// terminal state closes the request's done channel exactly once.
func (s *Store) Update(_ context.Context, r *request.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.ID.String()
	cur, ok := s.requests[key]
	if !ok {
		return request.ErrNotFound
	}
	if cur.Terminal() && cur.State != r.State {
		return request.ErrInvalidState
	}

	wasTerminal := cur.Terminal()
	cp := *r
	s.requests[key] = &cp

	if !wasTerminal && cp.Terminal() {
		if ch, ok := s.done[key]; ok {
			close(ch)
		}
	}
	return nil
}

// Done returns a channel closed when the request reaches a terminal state.
func (s *Store) Done(rid id.RequestID) (<-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.done[rid.String()]
	if !ok {
		return nil, request.ErrNotFound
	}
	return ch, nil
}

// ──────────────────────────────────────────────────
// Priority queue
// ──────────────────────────────────────────────────

// Claim atomically selects the highest-effective-score pending or deferred
// request whose eligible predicate returns true and marks it running.
// The store lock serializes racing workers: exactly one wins a given
// request, the others observe it as running and move on.
func (s *Store) Claim(_ context.Context, now time.Time, eligible func(r *request.Request) bool) (*request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *request.Request
	for _, r := range s.requests {
		if !r.Queued() {
			continue
		}
		if eligible != nil && !eligible(r) {
			continue
		}
		if best == nil || request.Less(r, best, now, s.agingRate, s.agingCap) {
			best = r
		}
	}
	if best == nil {
		return nil, request.ErrNoneEligible
	}

	best.State = request.StateRunning
	started := now
	best.StartedAt = &started

	cp := *best
	return &cp, nil
}

// Release returns a running request to pending without recording an outcome.
func (s *Store) Release(_ context.Context, rid id.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[rid.String()]
	if !ok {
		return request.ErrNotFound
	}
	if r.State != request.StateRunning {
		return request.ErrInvalidState
	}

	r.State = request.StatePending
	r.StartedAt = nil
	return nil
}

// Position returns the 1-based rank of the request among its tenant's
// pending and deferred requests, computed with the same scoring function
// Claim uses.
func (s *Store) Position(_ context.Context, rid id.RequestID, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.requests[rid.String()]
	if !ok || !target.Queued() {
		// Running and terminal requests have no queue position.
		return 0, request.ErrNotFound
	}

	rank := 1
	for _, r := range s.requests {
		if r == target || r.TenantID != target.TenantID || !r.Queued() {
			continue
		}
		if request.Less(r, target, now, s.agingRate, s.agingCap) {
			rank++
		}
	}
	return rank, nil
}

// CountActive returns pending+deferred+running requests for the tenant.
func (s *Store) CountActive(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.requests {
		if r.TenantID != tenantID {
			continue
		}
		if r.Queued() || r.State == request.StateRunning {
			n++
		}
	}
	return n, nil
}

// CountQueued returns pending+deferred requests across all tenants.
func (s *Store) CountQueued(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.requests {
		if r.Queued() {
			n++
		}
	}
	return n, nil
}

// Counts returns the number of requests per state.
func (s *Store) Counts(_ context.Context) (map[request.State]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[request.State]int)
	for _, r := range s.requests {
		counts[r.State]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Eviction
// ──────────────────────────────────────────────────

// Evict removes a terminal request after its result has been retrieved.
func (s *Store) Evict(_ context.Context, rid id.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rid.String()
	r, ok := s.requests[key]
	if !ok {
		return request.ErrNotFound
	}
	if !r.Terminal() {
		return request.ErrInvalidState
	}

	delete(s.requests, key)
	delete(s.done, key)
	return nil
}

// SweepExpired evicts terminal requests whose completion is older than ttl.
func (s *Store) SweepExpired(_ context.Context, now time.Time, ttl time.Duration) ([]id.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []id.RequestID
	for key, r := range s.requests {
		if !r.Terminal() || r.CompletedAt == nil {
			continue
		}
		if now.Sub(*r.CompletedAt) < ttl {
			continue
		}
		evicted = append(evicted, r.ID)
		delete(s.requests, key)
		delete(s.done, key)
	}

	// Stable order for logging and tests.
	sort.Slice(evicted, func(i, k int) bool {
		return evicted[i].String() < evicted[k].String()
	})
	return evicted, nil
}
