package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/lock"
)

// EnqueueFunc is the callback the beat uses to enqueue invocations.
// This breaks the import cycle: the engine provides the implementation.
type EnqueueFunc func(ctx context.Context, taskName string, payload []byte, queue string) (id.TaskID, error)

// BeatOption configures a Beat.
type BeatOption func(*Beat)

// WithTickInterval sets how often the beat checks for due entries.
// Non-positive values are ignored.
func WithTickInterval(d time.Duration) BeatOption {
	return func(b *Beat) {
		if d > 0 {
			b.tickInterval = d
		}
	}
}

// WithEntryLock guards each fire with a named lock, so an old beat process
// lingering through a rollout cannot double-enqueue an entry.
func WithEntryLock(f lock.Factory, ttl time.Duration) BeatOption {
	return func(b *Beat) {
		b.locks = f
		b.lockTTL = ttl
	}
}

// Beat fires the merged schedule on a tick loop. Run one beat per
// deployment; see the package doc for the single-scheduler model.
type Beat struct {
	schedule *Schedule
	enqueue  EnqueueFunc
	logger   *slog.Logger

	tickInterval time.Duration
	locks        lock.Factory
	lockTTL      time.Duration

	// next holds the upcoming fire time per entry name.
	next map[string]time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewBeat creates a Beat over a merged schedule.
func NewBeat(s *Schedule, enqueue EnqueueFunc, logger *slog.Logger, opts ...BeatOption) *Beat {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Beat{
		schedule:     s,
		enqueue:      enqueue,
		logger:       logger,
		tickInterval: 1 * time.Second,
		next:         make(map[string]time.Time, s.Len()),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the tick goroutine. The first fire of each entry is its
// next occurrence after start; entries do not fire retroactively.
func (b *Beat) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}
	b.running = true

	now := time.Now().UTC()
	for _, e := range b.schedule.Entries() {
		b.next[e.Name] = e.Next(now)
	}
	b.wg.Add(1)
	go b.tickLoop()
	b.logger.Info("beat started",
		slog.Int("entries", b.schedule.Len()),
		slog.Duration("tick_interval", b.tickInterval),
	)
	return nil
}

// Stop signals the beat to stop and waits for the tick goroutine.
// Stopping an already stopped beat is a no-op.
func (b *Beat) Stop(_ context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopCh)
	b.wg.Wait()
	b.logger.Info("beat stopped")
	return nil
}

func (b *Beat) tickLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.tick(time.Now().UTC())
		}
	}
}

func (b *Beat) tick(now time.Time) {
	ctx := context.Background()
	for _, e := range b.schedule.Entries() {
		due := b.next[e.Name]
		if due.After(now) {
			continue
		}
		b.fire(ctx, e)
		b.next[e.Name] = e.Next(now)
	}
}

func (b *Beat) fire(ctx context.Context, e *Entry) {
	// The entry lock is deliberately NOT released on success: it sits
	// until its TTL lapses, so a second beat process overlapping this one
	// (rollout, crash recovery) sees Busy instead of double-enqueueing the
	// same occurrence. Size the TTL below the entry's shortest interval.
	var held *lock.Lock
	if b.locks != nil {
		l, err := b.locks.Acquire(ctx, "beat:"+e.Name, b.lockTTL)
		if errors.Is(err, vegetables.ErrBusy) {
			b.logger.Warn("beat entry locked, skipping fire", slog.String("entry", e.Name))
			return
		}
		if err != nil {
			b.logger.Error("beat entry lock error",
				slog.String("entry", e.Name),
				slog.String("error", err.Error()),
			)
			return
		}
		held = l
	}

	taskID, err := b.enqueue(ctx, e.Task, e.Payload, e.Queue)
	if err != nil {
		b.logger.Error("beat enqueue error",
			slog.String("entry", e.Name),
			slog.String("task", e.Task),
			slog.String("error", err.Error()),
		)
		// Free the lock so the next tick can retry the enqueue.
		if held != nil {
			if relErr := b.locks.Release(ctx, held); relErr != nil {
				b.logger.Error("beat entry lock release error",
					slog.String("entry", e.Name),
					slog.String("error", relErr.Error()),
				)
			}
		}
		return
	}
	b.logger.Info("beat fired",
		slog.String("entry", e.Name),
		slog.String("task", e.Task),
		slog.String("invocation_id", taskID.String()),
	)
}
