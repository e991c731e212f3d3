package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/middleware"
	"github.com/stevearc/eat-your-vegetables/task"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *task.Invocation, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *task.Invocation, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	inv := &task.Invocation{Name: "test", ID: id.NewTaskID()}
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), inv, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := chain(context.Background(), &task.Invocation{ID: id.NewTaskID()}, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *task.Invocation, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), &task.Invocation{ID: id.NewTaskID()}, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	inv := &task.Invocation{Name: "panicky", ID: id.NewTaskID()}

	err := mw(context.Background(), inv, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	var pe *middleware.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %T: %v", err, err)
	}
	if pe.Task != "panicky" || pe.Value != "test panic" {
		t.Errorf("PanicError = %+v", pe)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	inv := &task.Invocation{Name: "normal", ID: id.NewTaskID()}

	called := false
	err := mw(context.Background(), inv, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestTimeout_CancelsContext(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	inv := &task.Invocation{Name: "slow", ID: id.NewTaskID(), Timeout: 20 * time.Millisecond}

	err := mw(context.Background(), inv, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_FallbackAppliesWhenTaskDeclaresNone(t *testing.T) {
	mw := middleware.TimeoutWithFallback(slog.Default(), 20*time.Millisecond)
	inv := &task.Invocation{Name: "default-bounded", ID: id.NewTaskID()}

	err := mw(context.Background(), inv, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_DeclaredTimeoutBeatsFallback(t *testing.T) {
	mw := middleware.TimeoutWithFallback(slog.Default(), time.Millisecond)
	inv := &task.Invocation{Name: "own-deadline", ID: id.NewTaskID(), Timeout: time.Minute}

	err := mw(context.Background(), inv, func(ctx context.Context) error {
		d, ok := ctx.Deadline()
		if !ok {
			t.Fatal("expected a deadline")
		}
		if time.Until(d) < time.Second {
			t.Errorf("deadline %v reflects the fallback, not the declared timeout", d)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_ZeroMeansNoDeadline(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	inv := &task.Invocation{Name: "unbounded", ID: id.NewTaskID()}

	err := mw(context.Background(), inv, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("no deadline expected for zero timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// captureHandler records every log record it receives.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func TestLogging_CancellationLogsWarn(t *testing.T) {
	h := &captureHandler{}
	mw := middleware.Logging(slog.New(h))
	inv := &task.Invocation{Name: "interrupted", ID: id.NewTaskID(), Queue: "default"}

	err := mw(context.Background(), inv, func(_ context.Context) error {
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if len(h.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h.records))
	}
	if got := h.records[1].Level; got != slog.LevelWarn {
		t.Errorf("completion level = %v, want %v", got, slog.LevelWarn)
	}
}

func TestLogging_RetriedInvocationLogsAttempt(t *testing.T) {
	h := &captureHandler{}
	mw := middleware.Logging(slog.New(h))
	inv := &task.Invocation{Name: "retried", ID: id.NewTaskID(), Queue: "default", RetryCount: 2}

	if err := mw(context.Background(), inv, func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h.records))
	}
	attempt := int64(0)
	h.records[0].Attrs(func(a slog.Attr) bool {
		if a.Key == "attempt" {
			attempt = a.Value.Int64()
		}
		return true
	})
	if attempt != 3 {
		t.Errorf("attempt = %d, want 3", attempt)
	}
}

func TestLogging_PassesThroughError(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	inv := &task.Invocation{Name: "logged", ID: id.NewTaskID(), Queue: "default"}

	want := errors.New("boom")
	err := mw(context.Background(), inv, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
