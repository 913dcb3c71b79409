// Package upstream defines the contract between the gate and the upstream
// analytics API client it protects. The gate never speaks HTTP itself; the
// caller supplies an ExecuteFunc and the scheduler invokes it for each
// dispatched request.
package upstream

import (
	"context"
	"errors"
)

// ErrRateLimited signals that the upstream API rejected the call with a
// rate-limit response (HTTP 429). It is the only retryable failure: the
// scheduler defers the request, backs off the tenant, and retries once the
// backoff window elapses. Executors must return (or wrap) this sentinel for
// 429 responses; any other error is terminal for the request.
var ErrRateLimited = errors.New("upstream: rate limited")

// ExecuteFunc invokes one upstream operation. endpoint identifies the
// operation (e.g. "runReport", "runRealtimeReport") and params is the opaque
// request payload passed through unmodified. On success it returns the raw
// response payload.
type ExecuteFunc func(ctx context.Context, endpoint string, params map[string]any) ([]byte, error)
