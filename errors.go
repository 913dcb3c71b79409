package gate

import (
	"errors"

	"github.com/MaherFayad/ga-gate/request"
	"github.com/MaherFayad/ga-gate/upstream"
)

var (
	// Configuration errors.
	ErrNoExecutor = errors.New("gate: no upstream executor configured")

	// Admission errors, surfaced synchronously from Enqueue.
	ErrQuotaExceeded = errors.New("gate: tenant quota exhausted for current window")
	ErrQueueFull     = errors.New("gate: queue at capacity")
	ErrInvalidRole   = errors.New("gate: invalid role")
	ErrShutdown      = errors.New("gate: shutting down")

	// Result errors.
	ErrNotReady    = errors.New("gate: request not finished")
	ErrWaitTimeout = errors.New("gate: timed out waiting for result")

	// Terminal failure causes, matched against a failed request's error.
	ErrRateLimitExceeded = errors.New("gate: max attempts exhausted against upstream rate limiting")
	ErrUpstreamFailed    = errors.New("gate: upstream call failed")
)

// Aliases for subsystem sentinels so callers need only this package.
var (
	ErrNotFound    = request.ErrNotFound
	ErrRateLimited = upstream.ErrRateLimited
)
