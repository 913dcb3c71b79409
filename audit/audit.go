// Package audit bridges the gate's lifecycle event stream to an audit
// trail backend. Each request transition becomes a structured audit
// record through a caller-provided [Recorder], so compliance tooling can
// answer who queued what against the upstream API and how it ended.
package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MaherFayad/ga-gate/event"
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package carries no backend dependency —
// callers inject their concrete trail at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit record.
	Record(ctx context.Context, rec *Record) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, rec *Record) error

func (f RecorderFunc) Record(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// Record is one audit trail entry derived from a lifecycle event.
type Record struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Severity constants.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// resourceRequest is the resource name used for all request records.
const resourceRequest = "analytics_request"

// Trail consumes a gate event subscription and records an audit entry per
// lifecycle transition. Create one with New, feed it the channel from
// Gate.Events, and call Run (usually in a goroutine); Run returns when
// the channel closes.
type Trail struct {
	recorder Recorder
	enabled  map[event.Type]bool // nil = all enabled
	logger   *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Trail.
type Option func(*Trail)

// WithTypes restricts the trail to the listed event types.
// By default every lifecycle type is recorded.
func WithTypes(types ...event.Type) Option {
	return func(t *Trail) {
		t.enabled = make(map[event.Type]bool, len(types))
		for _, typ := range types {
			t.enabled[typ] = true
		}
	}
}

// WithLogger sets a custom logger for the trail.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trail) { t.logger = l }
}

// New creates a Trail that emits audit records through the given Recorder.
func New(r Recorder, opts ...Option) *Trail {
	t := &Trail{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start consumes events from ch on a background goroutine until the
// channel closes. Wait blocks until consumption finishes.
func (t *Trail) Start(ch <-chan event.Event) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.Run(context.Background(), ch)
	}()
}

// Wait blocks until all Start goroutines have drained their channels.
func (t *Trail) Wait() { t.wg.Wait() }

// Run consumes events from ch until it closes or ctx is cancelled,
// recording one audit entry per enabled event. Recorder errors are logged
// and skipped; the trail never blocks the gate.
func (t *Trail) Run(ctx context.Context, ch <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if t.enabled != nil && !t.enabled[evt.Type] {
				continue
			}
			if err := t.recorder.Record(ctx, toRecord(evt)); err != nil {
				t.logger.Warn("audit record failed",
					slog.String("action", string(evt.Type)),
					slog.String("request_id", evt.RequestID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func toRecord(evt event.Event) *Record {
	severity := SeverityInfo
	outcome := OutcomeSuccess
	if evt.Type == event.TypeFailed {
		severity = SeverityWarning
		outcome = OutcomeFailure
	}

	meta := map[string]any{
		"tenant_id": evt.TenantID,
		"endpoint":  evt.Endpoint,
		"state":     string(evt.State),
		"at":        evt.At,
	}
	if evt.Attempt > 0 {
		meta["attempt"] = evt.Attempt
	}
	if evt.Error != "" {
		meta["error"] = evt.Error
	}

	return &Record{
		Action:     "request_" + string(evt.Type),
		Resource:   resourceRequest,
		ResourceID: evt.RequestID.String(),
		Outcome:    outcome,
		Severity:   severity,
		Metadata:   meta,
	}
}
