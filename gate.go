package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MaherFayad/ga-gate/backoff"
	"github.com/MaherFayad/ga-gate/clock"
	"github.com/MaherFayad/ga-gate/event"
	"github.com/MaherFayad/ga-gate/id"
	"github.com/MaherFayad/ga-gate/middleware"
	"github.com/MaherFayad/ga-gate/quota"
	"github.com/MaherFayad/ga-gate/request"
	"github.com/MaherFayad/ga-gate/store/memory"
	"github.com/MaherFayad/ga-gate/throttle"
	"github.com/MaherFayad/ga-gate/upstream"
	"github.com/MaherFayad/ga-gate/worker"
)

// Gate is the queue facade: the single entry point for enqueueing requests
// against the upstream API and observing their progress. It owns the
// request store, the admission quota, the per-tenant backoff state, and
// the worker pool.
//
// Create one with New and functional options, call Start, and shut down
// with Shutdown. All methods are safe for concurrent use.
type Gate struct {
	config   Config
	logger   *slog.Logger
	clk      clock.Clock
	exec     upstream.ExecuteFunc
	extraMW  []middleware.Middleware
	strategy backoff.Strategy

	store    request.Store
	quota    *quota.Tracker
	backoff  *backoff.Tracker
	throttle *throttle.Manager
	bus      *event.Bus
	executor *worker.Executor
	pool     *worker.Pool

	mu      sync.Mutex
	started bool
	stopped bool

	sweepStop chan struct{}
	sweepWg   sync.WaitGroup
}

// Stats is a point-in-time snapshot of the gate's queue.
type Stats struct {
	Queued        int                   `json:"queued"`
	ByState       map[request.State]int `json:"by_state"`
	EventsDropped uint64                `json:"events_dropped"`
}

// New creates a Gate with the given options. WithExecutor is required.
func New(opts ...Option) (*Gate, error) {
	g := &Gate{
		config:    DefaultConfig(),
		logger:    slog.Default(),
		clk:       clock.System(),
		sweepStop: make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.exec == nil {
		return nil, ErrNoExecutor
	}

	if g.store == nil {
		g.store = memory.New(memory.WithScoring(g.config.AgingRate, g.config.AgingCap))
	}
	g.quota = quota.NewTracker(g.config.QuotaWindow, g.config.QuotaLimits, g.clk)
	if g.strategy == nil {
		g.strategy = backoff.NewExponential(g.config.BaseBackoff, g.config.MaxBackoff)
	}
	g.backoff = backoff.NewTracker(g.strategy, g.clk)
	g.bus = event.NewBus()

	mws := append([]middleware.Middleware{
		middleware.Recover(g.logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Logging(g.logger),
		middleware.Scope(),
		middleware.Timeout(g.logger),
	}, g.extraMW...)

	g.executor = worker.NewExecutor(g.store, g.backoff, g.bus, g.clk, g.exec, g.logger, mws...)
	g.pool = worker.NewPool(g.store, g.executor, g.backoff, g.throttle, g.clk, g.logger,
		worker.WithConcurrency(g.config.WorkerCount),
		worker.WithRetryDelay(g.config.RetryDelay),
	)

	return g, nil
}

// Logger returns the gate's logger.
func (g *Gate) Logger() *slog.Logger { return g.logger }

// Config returns a copy of the gate's configuration.
func (g *Gate) Config() Config { return g.config }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the worker pool and the retention janitor. It returns
// immediately.
func (g *Gate) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return nil
	}
	g.started = true

	if err := g.pool.Start(ctx); err != nil {
		return err
	}

	if g.config.RetentionTTL > 0 && g.config.SweepInterval > 0 {
		g.sweepWg.Add(1)
		go g.sweepLoop()
	}

	g.logger.Info("gate started",
		slog.Int("workers", g.config.WorkerCount),
		slog.Duration("quota_window", g.config.QuotaWindow),
	)
	return nil
}

// Shutdown stops admission immediately, then drains: in-flight dispatches
// run to completion and queued requests stay queued. When the context has
// no deadline, ShutdownTimeout applies.
func (g *Gate) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	wasStarted := g.started
	g.mu.Unlock()

	g.logger.Info("gate shutting down")

	if _, ok := ctx.Deadline(); !ok && g.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.ShutdownTimeout)
		defer cancel()
	}

	if wasStarted {
		close(g.sweepStop)
		g.sweepWg.Wait()
		if err := g.pool.Stop(ctx); err != nil {
			g.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
	}

	g.bus.Publish(event.Event{Type: event.TypeShutdown, At: g.clk.Now()})
	g.bus.Shutdown()
	return nil
}

// Events returns a subscription to the request lifecycle stream. buffer
// <= 0 uses the default. The channel closes on Shutdown.
func (g *Gate) Events(buffer int) <-chan event.Event {
	return g.bus.Subscribe(buffer)
}

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

// Enqueue admits a request into the queue. It charges the tenant's quota
// exactly once, synchronously: a QuotaExceeded or QueueFull rejection
// leaves the queue and the quota untouched. The returned request is a
// snapshot; use Position, WaitForResult, or Result to follow it.
func (g *Gate) Enqueue(
	ctx context.Context,
	tenantID, userID string,
	role request.Role,
	endpoint string,
	params map[string]any,
	opts ...request.Option,
) (*request.Request, error) {
	g.mu.Lock()
	stopped := g.stopped
	g.mu.Unlock()
	if stopped {
		return nil, ErrShutdown
	}

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	o := request.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = g.config.MaxAttempts
	}

	if !g.quota.Allow(tenantID, role) {
		return nil, fmt.Errorf("%w: tenant %s, resets at %s",
			ErrQuotaExceeded, tenantID, g.quota.WindowReset(tenantID).Format(time.RFC3339))
	}

	if g.config.QueueCapacity > 0 {
		queued, err := g.store.CountQueued(ctx)
		if err != nil {
			g.quota.Refund(tenantID)
			return nil, err
		}
		if queued >= g.config.QueueCapacity {
			g.quota.Refund(tenantID)
			return nil, ErrQueueFull
		}
	}

	r := &request.Request{
		ID:           id.NewRequestID(),
		TenantID:     tenantID,
		UserID:       userID,
		Role:         role,
		Endpoint:     endpoint,
		Params:       params,
		BasePriority: clampPriority(o.Priority),
		State:        request.StatePending,
		MaxAttempts:  o.MaxAttempts,
		Timeout:      o.Timeout,
		EnqueuedAt:   g.clk.Now(),
	}

	if err := g.store.Enqueue(ctx, r); err != nil {
		g.quota.Refund(tenantID)
		return nil, err
	}

	g.logger.Debug("request enqueued",
		slog.String("request_id", r.ID.String()),
		slog.String("tenant_id", tenantID),
		slog.String("endpoint", endpoint),
		slog.Int("priority", r.BasePriority),
	)
	g.bus.Publish(event.Event{
		Type:      event.TypeEnqueued,
		RequestID: r.ID,
		TenantID:  tenantID,
		Endpoint:  endpoint,
		State:     request.StatePending,
		At:        r.EnqueuedAt,
	})
	g.pool.Notify()

	return r, nil
}

// ──────────────────────────────────────────────────
// Observation
// ──────────────────────────────────────────────────

// Position returns the request's 1-based rank among its tenant's queued
// requests, computed with the same scoring the scheduler dispatches by.
// Returns ErrNotFound for unknown, running, or finished requests.
func (g *Gate) Position(ctx context.Context, rid id.RequestID) (int, error) {
	return g.store.Position(ctx, rid, g.clk.Now())
}

// Length returns the number of the tenant's requests still in the gate's
// hands: pending, deferred, and running. Other tenants' traffic never
// shows in the count.
func (g *Gate) Length(ctx context.Context, tenantID string) (int, error) {
	return g.store.CountActive(ctx, tenantID)
}

// EstimatedWait returns position × average processing time. The average
// is measured from recent dispatch latencies, seeded with the configured
// AvgProcessingTime until samples exist.
func (g *Gate) EstimatedWait(ctx context.Context, rid id.RequestID) (time.Duration, error) {
	pos, err := g.Position(ctx, rid)
	if err != nil {
		return 0, err
	}
	avg := g.executor.AvgLatency()
	if avg == 0 {
		avg = g.config.AvgProcessingTime
	}
	return time.Duration(pos) * avg, nil
}

// Stats returns a snapshot of queue depth and per-state counts.
func (g *Gate) Stats(ctx context.Context) (Stats, error) {
	counts, err := g.store.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Queued:        counts[request.StatePending] + counts[request.StateDeferred],
		ByState:       counts,
		EventsDropped: g.bus.Dropped(),
	}, nil
}

// QuotaRemaining returns how many admissions the tenant has left in the
// current window.
func (g *Gate) QuotaRemaining(tenantID string, role request.Role) int {
	return g.quota.Remaining(tenantID, role)
}

// QuotaWindowReset returns when the tenant's quota window rolls over.
func (g *Gate) QuotaWindowReset(tenantID string) time.Time {
	return g.quota.WindowReset(tenantID)
}

// ──────────────────────────────────────────────────
// Results
// ──────────────────────────────────────────────────

// WaitForResult blocks until the request reaches a terminal state or the
// timeout elapses. A timeout returns ErrWaitTimeout without touching the
// request — it keeps processing, and the caller may re-attach with a
// later WaitForResult on the same ID. Retrieving a result evicts the
// request.
func (g *Gate) WaitForResult(ctx context.Context, rid id.RequestID, timeout time.Duration) ([]byte, error) {
	done, err := g.store.Done(rid)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return g.retrieve(ctx, rid)
	case <-timer.C:
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the request's outcome without blocking. Returns
// ErrNotReady while the request is still queued or running. Retrieving a
// result evicts the request.
func (g *Gate) Result(ctx context.Context, rid id.RequestID) ([]byte, error) {
	r, err := g.store.Get(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !r.Terminal() {
		return nil, ErrNotReady
	}
	return g.retrieve(ctx, rid)
}

// retrieve maps a terminal request to its caller-facing outcome and
// evicts it. Retrieval-then-evict keeps the registry bounded without
// racing WaitForResult: the done channel has already closed, so every
// waiter sees the terminal state; only the first retriever gets the
// payload, later ones get ErrNotFound.
func (g *Gate) retrieve(ctx context.Context, rid id.RequestID) ([]byte, error) {
	r, err := g.store.Get(ctx, rid)
	if err != nil {
		return nil, err
	}

	if evictErr := g.store.Evict(ctx, rid); evictErr == nil {
		g.bus.Publish(event.Event{
			Type:      event.TypeEvicted,
			RequestID: rid,
			TenantID:  r.TenantID,
			State:     r.State,
			At:        g.clk.Now(),
		})
	}

	if r.State == request.StateSucceeded {
		return r.Result, nil
	}
	switch r.Failure {
	case request.FailureRateLimit:
		return nil, fmt.Errorf("%w: %s", ErrRateLimitExceeded, r.Err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUpstreamFailed, r.Err)
	}
}

// ──────────────────────────────────────────────────
// Retention
// ──────────────────────────────────────────────────

// sweepLoop evicts finished requests whose results were never retrieved
// once their retention TTL elapses.
func (g *Gate) sweepLoop() {
	defer g.sweepWg.Done()

	ticker := time.NewTicker(g.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.sweepStop:
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *Gate) sweep() {
	evicted, err := g.store.SweepExpired(context.Background(), g.clk.Now(), g.config.RetentionTTL)
	if err != nil {
		g.logger.Error("retention sweep error", slog.String("error", err.Error()))
		return
	}
	for _, rid := range evicted {
		g.bus.Publish(event.Event{
			Type:      event.TypeEvicted,
			RequestID: rid,
			At:        g.clk.Now(),
		})
	}
	if len(evicted) > 0 {
		g.logger.Debug("retention sweep evicted expired results",
			slog.Int("count", len(evicted)),
		)
	}
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
