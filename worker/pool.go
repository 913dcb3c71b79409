package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MaherFayad/ga-gate/backoff"
	"github.com/MaherFayad/ga-gate/clock"
	"github.com/MaherFayad/ga-gate/id"
	"github.com/MaherFayad/ga-gate/request"
	"github.com/MaherFayad/ga-gate/throttle"
)

// defaultRetryDelay is how long a worker backs off after losing the
// post-claim throttle race before trying again.
const defaultRetryDelay = 100 * time.Millisecond

// Pool manages a set of worker goroutines that claim queued requests and
// execute them. Workers idle on a notification channel rather than polling:
// the gate pokes the pool on every enqueue, and a timer wakes it when the
// earliest tenant backoff window expires.
type Pool struct {
	store    request.Store
	executor *Executor
	backoff  *backoff.Tracker
	throttle *throttle.Manager
	clk      clock.Clock
	logger   *slog.Logger

	concurrency int
	retryDelay  time.Duration
	workerID    id.WorkerID

	notify chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of concurrent worker goroutines.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithRetryDelay sets how long a worker waits after a throttled claim
// before retrying.
func WithRetryDelay(d time.Duration) PoolOption {
	return func(p *Pool) { p.retryDelay = d }
}

// NewPool creates a worker pool.
func NewPool(
	store request.Store,
	executor *Executor,
	bo *backoff.Tracker,
	tm *throttle.Manager,
	clk clock.Clock,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:       store,
		executor:    executor,
		backoff:     bo,
		throttle:    tm,
		clk:         clk,
		logger:      logger,
		concurrency: 5,
		retryDelay:  defaultRetryDelay,
		workerID:    id.NewWorkerID(),
		notify:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		active:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Notify wakes an idle worker. Non-blocking; coalesces with a pending
// notification.
func (p *Pool) Notify() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.runLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for in-flight dispatches to
// finish. If the context has a deadline, remaining dispatches are cancelled
// when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active dispatches")
		p.cancelActive()
		p.wg.Wait()
	}

	return nil
}

// runLoop is run by each worker goroutine.
func (p *Pool) runLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		now := p.clk.Now()
		eligible := func(r *request.Request) bool {
			if !p.backoff.Eligible(r.TenantID) {
				return false
			}
			if p.throttle != nil && !p.throttle.CanAcquire(r.Endpoint, r.TenantID) {
				return false
			}
			return true
		}

		req, err := p.store.Claim(context.Background(), now, eligible)
		if err != nil {
			if err != request.ErrNoneEligible {
				p.logger.Error("claim error", slog.String("error", err.Error()))
			}
			p.idle(now)
			continue
		}

		// More work may remain; wake a sibling before dispatching.
		p.Notify()

		// The claim-time check was advisory. Acquire is authoritative and
		// consumes the rate token; losing the race returns the request to
		// the queue untouched.
		if p.throttle != nil && !p.throttle.Acquire(req.Endpoint, req.TenantID) {
			if relErr := p.store.Release(context.Background(), req.ID); relErr != nil {
				p.logger.Error("failed to release throttled claim",
					slog.String("request_id", req.ID.String()),
					slog.String("error", relErr.Error()),
				)
			}
			p.pause(p.retryDelay)
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		p.track(req.ID.String(), cancel)

		if execErr := p.executor.Execute(ctx, req); execErr != nil {
			p.logger.Debug("dispatch finished with error",
				slog.String("request_id", req.ID.String()),
				slog.String("endpoint", req.Endpoint),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrack(req.ID.String())
		cancel()

		if p.throttle != nil {
			p.throttle.Release(req.Endpoint, req.TenantID)
		}
	}
}

// idle blocks until new work may exist: an enqueue notification, the
// earliest backoff window expiring, or — when requests are queued but
// blocked on throttling — a short retry delay.
func (p *Pool) idle(now time.Time) {
	var wait time.Duration

	if wake, ok := p.backoff.EarliestWake(); ok {
		wait = wake.Sub(now)
	} else if queued, err := p.store.CountQueued(context.Background()); err == nil && queued > 0 {
		// Queued but ineligible work with no backoff deadline means the
		// throttle is the blocker; re-check shortly.
		wait = p.retryDelay
	}

	if wait <= 0 {
		select {
		case <-p.notify:
		case <-p.stopCh:
		}
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-p.notify:
	case <-timer.C:
	case <-p.stopCh:
	}
}

func (p *Pool) pause(d time.Duration) {
	select {
	case <-time.After(d):
	case <-p.stopCh:
	}
}

func (p *Pool) track(rid string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[rid] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(rid string) {
	p.activeMu.Lock()
	delete(p.active, rid)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for rid, cancel := range p.active {
		p.logger.Warn("cancelling active dispatch", slog.String("request_id", rid))
		cancel()
	}
}
