package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/lock"
)

func TestMemoryAcquireAndBusy(t *testing.T) {
	f := lock.NewMemory()
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if l.Name != "job:42" || l.Owner == "" {
		t.Fatalf("bad lock: %+v", l)
	}

	if _, err := f.Acquire(ctx, "job:42", time.Minute); !errors.Is(err, vegetables.ErrBusy) {
		t.Fatalf("second acquire: got %v, want ErrBusy", err)
	}

	// A different name is unaffected.
	if _, err := f.Acquire(ctx, "job:43", time.Minute); err != nil {
		t.Fatalf("acquire other name: %v", err)
	}
}

func TestMemoryConcurrentAcquireExactlyOneWins(t *testing.T) {
	f := lock.NewMemory()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	results := make([]error, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = f.Acquire(ctx, "contested", time.Minute)
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, vegetables.ErrBusy):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}
}

func TestMemoryExpiredLockIsStolen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := lock.NewMemory(lock.WithClock(clock))
	ctx := context.Background()

	first, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Holder crashes: no release. TTL passes.
	clock.Advance(61 * time.Second)

	second, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if second.Owner == first.Owner {
		t.Fatal("stolen lock should have a new owner token")
	}

	// The stale handle can no longer renew.
	if err := f.Renew(ctx, first, time.Minute); !errors.Is(err, vegetables.ErrLockLost) {
		t.Fatalf("renew stale: got %v, want ErrLockLost", err)
	}
}

func TestMemoryRenewExtendsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := lock.NewMemory(lock.WithClock(clock))
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	clock.Advance(50 * time.Second)
	if err := f.Renew(ctx, l, time.Minute); err != nil {
		t.Fatalf("renew: %v", err)
	}

	// Past the original expiry but within the renewed window.
	clock.Advance(30 * time.Second)
	if _, err := f.Acquire(ctx, "job:42", time.Minute); !errors.Is(err, vegetables.ErrBusy) {
		t.Fatalf("acquire within renewed window: got %v, want ErrBusy", err)
	}
}

func TestMemoryReleaseIdempotent(t *testing.T) {
	f := lock.NewMemory()
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	for range 3 {
		if err := f.Release(ctx, l); err != nil {
			t.Fatalf("release: %v", err)
		}
	}

	// Released name is immediately acquirable.
	if _, err := f.Acquire(ctx, "job:42", time.Minute); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

func TestMemoryReleaseByStaleOwnerKeepsCurrentLock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := lock.NewMemory(lock.WithClock(clock))
	ctx := context.Background()

	stale, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	clock.Advance(2 * time.Minute)

	current, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}

	// The crashed holder's late release must not free the new owner's lock.
	if err := f.Release(ctx, stale); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := f.Acquire(ctx, "job:42", time.Minute); !errors.Is(err, vegetables.ErrBusy) {
		t.Fatalf("current lock should still be held, got %v", err)
	}
	if err := f.Renew(ctx, current, time.Minute); err != nil {
		t.Fatalf("current renew: %v", err)
	}
}

func TestNoopAlwaysGrants(t *testing.T) {
	f := lock.NewNoop()
	ctx := context.Background()

	a, err := f.Acquire(ctx, "anything", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := f.Acquire(ctx, "anything", time.Minute)
	if err != nil {
		t.Fatalf("concurrent acquire: %v", err)
	}
	if a.Owner == b.Owner {
		t.Fatal("noop locks should still mint distinct owners")
	}
	if err := f.Renew(ctx, a, time.Minute); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if err := f.Release(ctx, b); err != nil {
		t.Fatalf("release: %v", err)
	}
}
