// Package request defines the queued analytics request entity, its lifecycle
// states, the role and priority model, the effective-score ordering function,
// and the persistence contract shared by the registry and the scheduler.
package request

import (
	"time"

	"github.com/MaherFayad/ga-gate/id"
)

// State represents the lifecycle state of a queued request.
type State string

const (
	// StatePending means the request is waiting to be picked up by a worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the request upstream.
	StateRunning State = "running"
	// StateDeferred means the request hit an upstream rate limit and is
	// waiting for its tenant's backoff window to elapse before retry.
	StateDeferred State = "deferred"
	// StateSucceeded means the upstream call finished and a result is stored.
	StateSucceeded State = "succeeded"
	// StateFailed means the request failed terminally and will not be retried.
	StateFailed State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Role is the per-user privilege tier used as a priority tie-breaker.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Bonus returns the score adjustment for the role. Unknown roles get the
// member bonus so a bad input degrades to baseline rather than failing.
func (r Role) Bonus() int {
	switch r {
	case RoleOwner:
		return 15
	case RoleAdmin:
		return 10
	case RoleViewer:
		return -10
	default:
		return 0
	}
}

// Valid reports whether the role is one of the four known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Caller-facing base priority tiers. Any value in [0,100] is accepted;
// these are the conventional levels.
const (
	PriorityCritical = 100
	PriorityHigh     = 80
	PriorityNormal   = 50
	PriorityLow      = 20
)

// FailureKind classifies a terminal failure so the facade can surface the
// matching sentinel error.
type FailureKind string

const (
	// FailureNone is the zero value for non-failed requests.
	FailureNone FailureKind = ""
	// FailureRateLimit means the request exhausted MaxAttempts on upstream 429s.
	FailureRateLimit FailureKind = "rate_limit"
	// FailureUpstream means the upstream returned a non-retryable error.
	FailureUpstream FailureKind = "upstream"
)

// Request is a unit of admission-controlled work against the upstream
// analytics API.
//
// Invariants: ID is immutable and globally unique; AttemptCount only
// increases; once State is terminal exactly one of Result/Err is set.
type Request struct {
	ID           id.RequestID   `json:"id"`
	TenantID     string         `json:"tenant_id"`
	UserID       string         `json:"user_id"`
	Role         Role           `json:"role"`
	Endpoint     string         `json:"endpoint"`
	Params       map[string]any `json:"params,omitempty"`
	BasePriority int            `json:"base_priority"`
	State        State          `json:"state"`
	AttemptCount int            `json:"attempt_count"`
	MaxAttempts  int            `json:"max_attempts"`
	Result       []byte         `json:"result,omitempty"`
	Err          string         `json:"error,omitempty"`
	Failure      FailureKind    `json:"failure,omitempty"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Timeout      time.Duration  `json:"timeout,omitempty"`
}

// Terminal reports whether the request has reached a final state.
func (r *Request) Terminal() bool { return r.State.Terminal() }

// Queued reports whether the request is waiting for dispatch
// (pending or deferred).
func (r *Request) Queued() bool {
	return r.State == StatePending || r.State == StateDeferred
}
