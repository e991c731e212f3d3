package flock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	flocklock "github.com/stevearc/eat-your-vegetables/lock/flock"
)

func TestAcquireReleaseCycle(t *testing.T) {
	f, err := flocklock.New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := f.Renew(ctx, l, time.Minute); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if err := f.Release(ctx, l); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := f.Release(ctx, l); err != nil {
		t.Fatalf("repeat release: %v", err)
	}

	if _, err := f.Acquire(ctx, "job:42", time.Minute); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

func TestContentionAcrossFactories(t *testing.T) {
	dir := t.TempDir()
	a, err := flocklock.New(dir)
	if err != nil {
		t.Fatalf("new a: %v", err)
	}
	b, err := flocklock.New(dir)
	if err != nil {
		t.Fatalf("new b: %v", err)
	}
	ctx := context.Background()

	l, err := a.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := b.Acquire(ctx, "job:42", time.Minute); !errors.Is(err, vegetables.ErrBusy) {
		t.Fatalf("contended acquire: got %v, want ErrBusy", err)
	}

	if err := a.Release(ctx, l); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := b.Acquire(ctx, "job:42", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestRenewLostAfterRelease(t *testing.T) {
	f, err := flocklock.New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	l, err := f.Acquire(ctx, "job:42", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := f.Release(ctx, l); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := f.Renew(ctx, l, time.Minute); !errors.Is(err, vegetables.ErrLockLost) {
		t.Fatalf("renew released: got %v, want ErrLockLost", err)
	}
}

func TestUnsafeNamesAreSanitized(t *testing.T) {
	f, err := flocklock.New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, err := f.Acquire(ctx, "../escape/attempt", time.Minute); err != nil {
		t.Fatalf("acquire with path runes: %v", err)
	}
}
