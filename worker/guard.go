// Package worker provides the invocation execution engine — a Guard that
// runs a single invocation through its lock gate, setup hooks, middleware,
// and completion callbacks, and a Pool that manages concurrent worker
// goroutines polling for invocations.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/backoff"
	"github.com/stevearc/eat-your-vegetables/lock"
	"github.com/stevearc/eat-your-vegetables/middleware"
	"github.com/stevearc/eat-your-vegetables/task"
)

// Guard executes one invocation at a time through a fixed sequence:
// acquire the execution lock (skip on Busy), run the setup hooks, run the
// body through middleware, deliver the completion callbacks, release the
// lock, then persist the terminal state.
//
// The lock gate is the core guarantee: at most one live execution of a
// given lock name at any time across the whole worker fleet. A Busy result
// is an expected outcome, recorded as a skipped invocation, never a
// failure.
type Guard struct {
	registry *task.Registry
	store    task.Store
	locks    lock.Factory
	backoff  backoff.Strategy
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewGuard creates a Guard. A nil lock factory defaults to the no-op
// variant (every task runs unguarded); a nil backoff uses the default.
func NewGuard(
	registry *task.Registry,
	store task.Store,
	locks lock.Factory,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Guard {
	if locks == nil {
		locks = lock.NewNoop()
	}
	if bo == nil {
		bo = backoff.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		registry: registry,
		store:    store,
		locks:    locks,
		backoff:  bo,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs the invocation to a terminal state.
//
// Busy lock: marks the invocation skipped and returns nil. Body success
// with clean callbacks: marks succeeded. Any body or callback error: the
// retry budget decides between retrying and failed. The returned error is
// nil whenever the invocation reached a terminal state normally, including
// skips and scheduled retries; it is non-nil only for infrastructure
// failures (store writes, lock backend errors).
func (g *Guard) Execute(ctx context.Context, inv *task.Invocation) error {
	reg, ok := g.registry.Get(inv.Name)
	if !ok {
		// No handler means the invocation can never run; fail it outright.
		inv.LastError = fmt.Sprintf("task %q not registered", inv.Name)
		return g.persistTerminal(ctx, inv, task.StateFailed)
	}

	held, skipped, err := g.acquireGate(ctx, inv, reg)
	if err != nil {
		return err
	}
	if skipped {
		return nil
	}

	sc := task.NewScope(g.registry.Base(), inv)
	if held != nil {
		sc.BindLock(g.locks, held)
	}
	ctx = task.WithScope(ctx, sc)

	bodyErr := g.runBody(ctx, sc, inv, reg)
	cbErr := g.runCallbacks(ctx, sc, bodyErr)

	g.releaseLock(ctx, inv, held)

	overall := errors.Join(bodyErr, cbErr)
	if overall != nil {
		return g.handleFailure(ctx, inv, overall)
	}
	return g.handleSuccess(ctx, inv)
}

// acquireGate acquires the task's execution lock when it declares one.
// The second return is true when the invocation was skipped on Busy.
func (g *Guard) acquireGate(ctx context.Context, inv *task.Invocation, reg *task.Registered) (*lock.Lock, bool, error) {
	name := reg.Opts.LockName(inv.Name, inv.Payload)
	if name == "" {
		return nil, false, nil
	}

	held, err := g.locks.Acquire(ctx, name, reg.Opts.LockTTL)
	if errors.Is(err, vegetables.ErrBusy) {
		g.logger.Info("invocation skipped, lock held elsewhere",
			slog.String("task", inv.Name),
			slog.String("invocation_id", inv.ID.String()),
			slog.String("lock", name),
		)
		return nil, true, g.persistTerminal(ctx, inv, task.StateSkipped)
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %q: %w", name, err)
	}
	return held, false, nil
}

// runBody runs the setup hooks and then the task body through middleware.
// A hook failure counts as a body failure: callbacks registered by earlier
// hooks still get their failure signal.
func (g *Guard) runBody(ctx context.Context, sc *task.Scope, inv *task.Invocation, reg *task.Registered) error {
	for _, hook := range g.registry.Base().SetupHooks() {
		if err := hook.OnTaskStart(ctx, sc); err != nil {
			return fmt.Errorf("task setup: %w", err)
		}
	}

	terminal := func(ctx context.Context) error {
		return reg.Handler(ctx, inv.Payload)
	}
	return g.mw(ctx, inv, terminal)
}

// runCallbacks delivers the body's outcome to every registered callback in
// registration order. A callback error never stops the remaining
// callbacks; all errors are joined and flip the invocation's overall
// outcome to failure.
func (g *Guard) runCallbacks(ctx context.Context, sc *task.Scope, bodyErr error) error {
	res := vegetables.Result{Outcome: vegetables.OutcomeSuccess}
	if bodyErr != nil {
		res = vegetables.Result{Outcome: vegetables.OutcomeFailure, Err: bodyErr}
	}

	var errs []error
	for _, cb := range sc.Callbacks() {
		if err := cb(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// releaseLock releases the execution lock after the callbacks have run, on
// every exit path. Release failures are logged, never propagated: the TTL
// is the safety net.
func (g *Guard) releaseLock(ctx context.Context, inv *task.Invocation, held *lock.Lock) {
	if held == nil {
		return
	}
	if err := g.locks.Release(ctx, held); err != nil {
		g.logger.Error("lock release error",
			slog.String("invocation_id", inv.ID.String()),
			slog.String("lock", held.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Guard) handleSuccess(ctx context.Context, inv *task.Invocation) error {
	return g.persistTerminal(ctx, inv, task.StateSucceeded)
}

// handleFailure spends one unit of the retry budget, scheduling a retry
// with backoff while budget remains and failing terminally after.
func (g *Guard) handleFailure(ctx context.Context, inv *task.Invocation, cause error) error {
	inv.RetryCount++
	inv.LastError = cause.Error()

	if inv.RetryCount <= inv.MaxRetries {
		delay := g.backoff.Delay(inv.RetryCount)
		inv.State = task.StateRetrying
		inv.RunAt = time.Now().UTC().Add(delay)
		if err := g.store.Update(ctx, inv); err != nil {
			return fmt.Errorf("persist retry: %w", err)
		}
		g.logger.Info("invocation scheduled for retry",
			slog.String("task", inv.Name),
			slog.String("invocation_id", inv.ID.String()),
			slog.Int("attempt", inv.RetryCount),
			slog.Int("max_retries", inv.MaxRetries),
			slog.Duration("delay", delay),
		)
		return nil
	}

	g.logger.Warn("invocation failed after exhausting retries",
		slog.String("task", inv.Name),
		slog.String("invocation_id", inv.ID.String()),
		slog.Int("retry_count", inv.RetryCount),
		slog.String("error", cause.Error()),
	)
	return g.persistTerminal(ctx, inv, task.StateFailed)
}

func (g *Guard) persistTerminal(ctx context.Context, inv *task.Invocation, state task.State) error {
	now := time.Now().UTC()
	inv.State = state
	inv.CompletedAt = &now
	if err := g.store.Update(ctx, inv); err != nil {
		return fmt.Errorf("persist %s: %w", state, err)
	}
	return nil
}
