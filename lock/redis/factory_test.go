package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	vegetables "github.com/stevearc/eat-your-vegetables"
	redislock "github.com/stevearc/eat-your-vegetables/lock/redis"
)

func newFactory(t *testing.T) (*redislock.Factory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client), mr
}

func TestAcquireAndBusy(t *testing.T) {
	f, _ := newFactory(t)
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if l.Owner == "" {
		t.Fatal("owner token must be set")
	}

	if _, err := f.Acquire(ctx, "job:42", time.Minute); !errors.Is(err, vegetables.ErrBusy) {
		t.Fatalf("second acquire: got %v, want ErrBusy", err)
	}
}

func TestExpiredLockIsStolen(t *testing.T) {
	f, mr := newFactory(t)
	ctx := context.Background()

	stale, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	fresh, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if fresh.Owner == stale.Owner {
		t.Fatal("stolen lock should carry a new owner")
	}

	if err := f.Renew(ctx, stale, time.Minute); !errors.Is(err, vegetables.ErrLockLost) {
		t.Fatalf("renew stale: got %v, want ErrLockLost", err)
	}
}

func TestRenewExtendsTTL(t *testing.T) {
	f, mr := newFactory(t)
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	mr.FastForward(50 * time.Second)
	if err := f.Renew(ctx, l, time.Minute); err != nil {
		t.Fatalf("renew: %v", err)
	}

	mr.FastForward(30 * time.Second)
	if _, err := f.Acquire(ctx, "job:42", time.Minute); !errors.Is(err, vegetables.ErrBusy) {
		t.Fatalf("acquire within renewed window: got %v, want ErrBusy", err)
	}
}

func TestReleaseIdempotentAndOwnerScoped(t *testing.T) {
	f, _ := newFactory(t)
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	for range 2 {
		if err := f.Release(ctx, l); err != nil {
			t.Fatalf("release: %v", err)
		}
	}

	if _, err := f.Acquire(ctx, "job:42", time.Minute); err != nil {
		t.Fatalf("reacquire: %v", err)
	}

	// A stale handle's release must not free the new holder's lock.
	if err := f.Release(ctx, l); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := f.Acquire(ctx, "job:42", time.Minute); !errors.Is(err, vegetables.ErrBusy) {
		t.Fatalf("lock should survive stale release, got %v", err)
	}
}
