package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/queue"
	"github.com/stevearc/eat-your-vegetables/task"
)

// Pool manages a set of concurrent worker goroutines that poll for
// invocations and execute them through the Guard.
type Pool struct {
	store        task.Store
	guard        *Guard
	concurrency  int
	queues       []string
	pollInterval time.Duration
	limits       *queue.Limiter
	workerID     id.WorkerID
	logger       *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
// Non-positive values are ignored.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPoolQueues sets the queues the pool will poll.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) {
		if len(queues) > 0 {
			p.queues = queues
		}
	}
}

// WithPollInterval sets how often workers poll for new invocations.
// Non-positive values are ignored.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithQueueLimits throttles dequeues with per-queue rate and concurrency
// limits. Invocations denied by the limiter return to pending with a
// small delay.
func WithQueueLimits(l *queue.Limiter) PoolOption {
	return func(p *Pool) { p.limits = l }
}

// NewPool creates a worker pool.
func NewPool(store task.Store, guard *Guard, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		store:        store,
		guard:        guard,
		concurrency:  10,
		queues:       []string{"default"},
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		active:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

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
		slog.Any("queues", p.queues),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish. If the
// context has a deadline, active invocations are cancelled when time runs
// out.
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
		p.logger.Warn("worker pool shutdown timed out, cancelling active invocations")
		p.cancelActive()
		p.wg.Wait()
	}
	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		invs, err := p.store.Dequeue(context.Background(), p.queues, 1)
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if len(invs) == 0 {
			p.sleep()
			continue
		}

		inv := invs[0]

		if p.limits != nil && !p.limits.Acquire(inv.Queue) {
			inv.State = task.StatePending
			inv.RunAt = time.Now().UTC().Add(p.pollInterval)
			if updateErr := p.store.Update(context.Background(), inv); updateErr != nil {
				p.logger.Error("failed to return throttled invocation",
					slog.String("invocation_id", inv.ID.String()),
					slog.String("error", updateErr.Error()),
				)
			}
			p.sleep()
			continue
		}

		inv.WorkerID = p.workerID

		ctx, cancel := context.WithCancel(context.Background())
		p.track(inv.ID.String(), cancel)

		if execErr := p.guard.Execute(ctx, inv); execErr != nil {
			p.logger.Error("invocation execution error",
				slog.String("task", inv.Name),
				slog.String("invocation_id", inv.ID.String()),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrack(inv.ID.String())
		cancel()

		if p.limits != nil {
			p.limits.Release(inv.Queue)
		}
	}
}

// sleep waits for the poll interval or until stop is signalled.
func (p *Pool) sleep() {
	select {
	case <-p.stopCh:
	case <-time.After(p.pollInterval):
	}
}

func (p *Pool) track(invID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	p.active[invID] = cancel
}

func (p *Pool) untrack(invID string) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	delete(p.active, invID)
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for _, cancel := range p.active {
		cancel()
	}
}
