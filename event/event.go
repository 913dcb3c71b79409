// Package event provides the lifecycle notification bus. The gate publishes
// an event at every request state transition; subscribers receive them on
// buffered channels for dashboards, audit trails, or tests.
package event

import (
	"time"

	"github.com/MaherFayad/ga-gate/id"
	"github.com/MaherFayad/ga-gate/request"
)

// Type identifies a lifecycle transition.
type Type string

const (
	TypeEnqueued  Type = "enqueued"
	TypeStarted   Type = "started"
	TypeDeferred  Type = "deferred"
	TypeSucceeded Type = "succeeded"
	TypeFailed    Type = "failed"
	TypeEvicted   Type = "evicted"
	TypeShutdown  Type = "shutdown"
)

// Event describes a single request lifecycle transition.
type Event struct {
	Type      Type          `json:"type"`
	RequestID id.RequestID  `json:"request_id"`
	TenantID  string        `json:"tenant_id,omitempty"`
	Endpoint  string        `json:"endpoint,omitempty"`
	State     request.State `json:"state,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}
