package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/lock"
	"github.com/stevearc/eat-your-vegetables/schedule"
)

type enqueueRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *enqueueRecorder) enqueue(_ context.Context, taskName string, _ []byte, _ string) (id.TaskID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, taskName)
	return id.NewTaskID(), nil
}

func (r *enqueueRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func mergedPing(t *testing.T, every string) *schedule.Schedule {
	t.Helper()
	c := vegetables.NewConfigurator(nil)
	if err := c.AddScheduledTask("ping", vegetables.ScheduleEntry{Task: "ping", Schedule: every}); err != nil {
		t.Fatalf("add: %v", err)
	}
	c.Freeze()
	s, err := schedule.Merge(c, setResolver{"ping": true})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	return s
}

func TestBeat_FiresDueEntries(t *testing.T) {
	rec := &enqueueRecorder{}
	b := schedule.NewBeat(mergedPing(t, "@every 30ms"), rec.enqueue, nil,
		schedule.WithTickInterval(5*time.Millisecond))

	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if got := rec.count(); got < 2 {
		t.Fatalf("fires = %d, want at least 2", got)
	}
}

func TestBeat_EntryLockSuppressesSecondBeat(t *testing.T) {
	locks := lock.NewMemory()
	recA := &enqueueRecorder{}
	recB := &enqueueRecorder{}

	// Two beats over the same schedule sharing one lock factory simulate a
	// rollout overlap. The lock TTL exceeds the test duration, so each
	// occurrence is enqueued by at most one of them.
	a := schedule.NewBeat(mergedPing(t, "@every 40ms"), recA.enqueue, nil,
		schedule.WithTickInterval(5*time.Millisecond),
		schedule.WithEntryLock(locks, time.Minute))
	b := schedule.NewBeat(mergedPing(t, "@every 40ms"), recB.enqueue, nil,
		schedule.WithTickInterval(5*time.Millisecond),
		schedule.WithEntryLock(locks, time.Minute))

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	_ = a.Stop(ctx)
	_ = b.Stop(ctx)

	if total := recA.count() + recB.count(); total != 1 {
		t.Fatalf("total fires = %d, want exactly 1 under a held entry lock", total)
	}
}

func TestBeat_StopIsClean(t *testing.T) {
	rec := &enqueueRecorder{}
	b := schedule.NewBeat(mergedPing(t, "@every 1h"), rec.enqueue, nil,
		schedule.WithTickInterval(5*time.Millisecond))

	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if rec.count() != 0 {
		t.Fatalf("hourly entry fired %d times during a short run", rec.count())
	}
}

func TestBeat_ZeroTickIntervalKeepsDefault(t *testing.T) {
	rec := &enqueueRecorder{}
	b := schedule.NewBeat(mergedPing(t, "@every 1h"), rec.enqueue, nil,
		schedule.WithTickInterval(0))

	ctx := context.Background()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestBeat_StopIsIdempotent(t *testing.T) {
	rec := &enqueueRecorder{}
	ctx := context.Background()

	b := schedule.NewBeat(mergedPing(t, "@every 1h"), rec.enqueue, nil,
		schedule.WithTickInterval(5*time.Millisecond))
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for range 2 {
		if err := b.Stop(ctx); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}

	// Stop before Start is a no-op too.
	idle := schedule.NewBeat(mergedPing(t, "@every 1h"), rec.enqueue, nil)
	if err := idle.Stop(ctx); err != nil {
		t.Fatalf("stop without start: %v", err)
	}
}
