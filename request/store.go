package request

import (
	"context"
	"errors"
	"time"

	"github.com/MaherFayad/ga-gate/id"
)

var (
	// ErrNotFound is returned when a request ID is unknown, already
	// evicted, or (for queue-position queries) already terminal.
	ErrNotFound = errors.New("request: not found")

	// ErrExists is returned when enqueueing a request whose ID is already
	// registered.
	ErrExists = errors.New("request: already exists")

	// ErrNoneEligible is returned by Claim when no pending or deferred
	// request belongs to an eligible tenant.
	ErrNoneEligible = errors.New("request: no eligible request")

	// ErrInvalidState is returned on a state transition the lifecycle
	// does not allow (e.g. mutating a terminal request).
	ErrInvalidState = errors.New("request: invalid state transition")
)

// Store is the persistence contract for the request registry and priority
// queue. One implementation backs both concerns so that claims, position
// queries, and counts observe a single consistent ordering.
type Store interface {
	// Enqueue registers a new request in pending state.
	Enqueue(ctx context.Context, r *Request) error

	// Get retrieves a request by ID.
	Get(ctx context.Context, rid id.RequestID) (*Request, error)

	// Update persists changes to an existing request. A transition into a
	// terminal state closes the request's Done channel exactly once.
	Update(ctx context.Context, r *Request) error

	// Claim atomically selects the highest-effective-score pending or
	// deferred request whose eligible predicate returns true, marks it
	// running, and returns a copy. At most one worker can claim a given
	// request. Returns ErrNoneEligible when nothing qualifies.
	Claim(ctx context.Context, now time.Time, eligible func(r *Request) bool) (*Request, error)

	// Release returns a claimed (running) request to pending without
	// recording an outcome. Used when a worker cannot safely commit a
	// transition and must abandon the claim.
	Release(ctx context.Context, rid id.RequestID) error

	// Position returns the 1-based rank of the request among all pending
	// and deferred requests of its tenant, ordered exactly as Claim would
	// dispatch them at the given instant. Returns ErrNotFound for unknown
	// or terminal requests.
	Position(ctx context.Context, rid id.RequestID, now time.Time) (int, error)

	// CountActive returns the number of pending, deferred, and running
	// requests for the tenant.
	CountActive(ctx context.Context, tenantID string) (int, error)

	// CountQueued returns the number of pending and deferred requests
	// across all tenants.
	CountQueued(ctx context.Context) (int, error)

	// Counts returns the number of requests per state.
	Counts(ctx context.Context) (map[State]int, error)

	// Done returns a channel that is closed when the request reaches a
	// terminal state. If the request is already terminal the returned
	// channel is closed.
	Done(rid id.RequestID) (<-chan struct{}, error)

	// Evict removes a terminal request whose result has been retrieved.
	// Evicting a non-terminal request returns ErrInvalidState.
	Evict(ctx context.Context, rid id.RequestID) error

	// SweepExpired evicts terminal requests whose completion is older than
	// ttl and returns the evicted IDs.
	SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) ([]id.RequestID, error)
}
