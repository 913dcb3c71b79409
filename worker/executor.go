// Package worker provides the dispatch engine — an Executor that performs
// a single upstream call through middleware and commits the outcome, and a
// Pool of goroutines that claim queued requests and run them.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MaherFayad/ga-gate/backoff"
	"github.com/MaherFayad/ga-gate/clock"
	"github.com/MaherFayad/ga-gate/event"
	"github.com/MaherFayad/ga-gate/middleware"
	"github.com/MaherFayad/ga-gate/request"
	"github.com/MaherFayad/ga-gate/upstream"
)

// latencySamples is the size of the ring buffer behind AvgLatency.
const latencySamples = 64

// Executor runs a single claimed request through the middleware chain and
// the upstream executor, then commits the outcome: success, deferral with
// tenant backoff, or terminal failure.
type Executor struct {
	store   request.Store
	backoff *backoff.Tracker
	events  *event.Bus
	clk     clock.Clock
	exec    upstream.ExecuteFunc
	mw      middleware.Middleware
	logger  *slog.Logger

	latMu   sync.Mutex
	lat     [latencySamples]time.Duration
	latN    int
	latNext int
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	store request.Store,
	bo *backoff.Tracker,
	events *event.Bus,
	clk clock.Clock,
	exec upstream.ExecuteFunc,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		store:   store,
		backoff: bo,
		events:  events,
		clk:     clk,
		exec:    exec,
		mw:      middleware.Chain(mws...),
		logger:  logger,
	}
}

// Execute runs a claimed request and commits exactly one outcome.
// On success: marks succeeded with the result payload and clears the
// tenant's backoff streak.
// On upstream rate limiting: records the 429 on the tenant's backoff and
// either defers the request or, when attempts are exhausted, fails it.
// On any other upstream error: marks failed.
// The attempt counter moves here, at commit time, so a claim abandoned
// before dispatch never costs the request an attempt.
func (e *Executor) Execute(ctx context.Context, r *request.Request) error {
	e.publish(event.TypeStarted, r, "")

	var result []byte
	terminal := func(ctx context.Context) error {
		var execErr error
		result, execErr = e.exec(ctx, r.Endpoint, r.Params)
		return execErr
	}

	start := time.Now()
	err := e.mw(ctx, r, terminal)
	elapsed := time.Since(start)

	now := e.clk.Now()
	r.AttemptCount++

	switch {
	case err == nil:
		return e.commitSuccess(ctx, r, result, now, elapsed)
	case errors.Is(err, upstream.ErrRateLimited):
		return e.commitRateLimited(ctx, r, err, now)
	default:
		return e.commitFailure(ctx, r, err, request.FailureUpstream, now)
	}
}

// AvgLatency returns the mean upstream latency over the recent successful
// dispatches, or zero when no sample has been recorded yet.
func (e *Executor) AvgLatency() time.Duration {
	e.latMu.Lock()
	defer e.latMu.Unlock()

	if e.latN == 0 {
		return 0
	}
	var sum time.Duration
	for i := range e.latN {
		sum += e.lat[i]
	}
	return sum / time.Duration(e.latN)
}

func (e *Executor) commitSuccess(ctx context.Context, r *request.Request, result []byte, now time.Time, elapsed time.Duration) error {
	r.State = request.StateSucceeded
	r.Result = result
	r.Err = ""
	r.Failure = request.FailureNone
	r.CompletedAt = &now

	if updateErr := e.store.Update(ctx, r); updateErr != nil {
		e.logger.Error("failed to commit successful request",
			slog.String("request_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.backoff.OnSuccess(r.TenantID)
	e.recordLatency(elapsed)
	e.publish(event.TypeSucceeded, r, "")
	return nil
}

func (e *Executor) commitRateLimited(ctx context.Context, r *request.Request, cause error, now time.Time) error {
	nextEligible := e.backoff.OnThrottled(r.TenantID)

	if r.AttemptCount >= r.MaxAttempts {
		e.logger.Warn("request exhausted attempts against rate limiting",
			slog.String("request_id", r.ID.String()),
			slog.String("tenant_id", r.TenantID),
			slog.Int("attempts", r.AttemptCount),
		)
		return e.commitFailure(ctx, r, cause, request.FailureRateLimit, now)
	}

	r.State = request.StateDeferred
	r.StartedAt = nil
	r.Err = cause.Error()

	if updateErr := e.store.Update(ctx, r); updateErr != nil {
		e.logger.Error("failed to defer rate-limited request",
			slog.String("request_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.logger.Info("request deferred after upstream 429",
		slog.String("request_id", r.ID.String()),
		slog.String("tenant_id", r.TenantID),
		slog.Int("attempt", r.AttemptCount),
		slog.Time("next_eligible", nextEligible),
	)
	e.publish(event.TypeDeferred, r, cause.Error())
	return cause
}

func (e *Executor) commitFailure(ctx context.Context, r *request.Request, cause error, kind request.FailureKind, now time.Time) error {
	r.State = request.StateFailed
	r.Err = cause.Error()
	r.Failure = kind
	r.CompletedAt = &now

	if updateErr := e.store.Update(ctx, r); updateErr != nil {
		e.logger.Error("failed to commit failed request",
			slog.String("request_id", r.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.logger.Warn("request failed",
		slog.String("request_id", r.ID.String()),
		slog.String("endpoint", r.Endpoint),
		slog.String("failure", string(kind)),
		slog.Int("attempts", r.AttemptCount),
		slog.String("error", cause.Error()),
	)
	e.publish(event.TypeFailed, r, cause.Error())
	return cause
}

func (e *Executor) recordLatency(d time.Duration) {
	e.latMu.Lock()
	defer e.latMu.Unlock()

	e.lat[e.latNext] = d
	e.latNext = (e.latNext + 1) % latencySamples
	if e.latN < latencySamples {
		e.latN++
	}
}

func (e *Executor) publish(t event.Type, r *request.Request, errMsg string) {
	if e.events == nil {
		return
	}
	e.events.Publish(event.Event{
		Type:      t,
		RequestID: r.ID,
		TenantID:  r.TenantID,
		Endpoint:  r.Endpoint,
		State:     r.State,
		Attempt:   r.AttemptCount,
		Error:     errMsg,
		At:        e.clk.Now(),
	})
}
