package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/store/memory"
	"github.com/stevearc/eat-your-vegetables/task"
)

func newInvocation(name, queue string) *task.Invocation {
	now := time.Now().UTC()
	return &task.Invocation{
		ID:        id.NewTaskID(),
		Name:      name,
		Queue:     queue,
		State:     task.StatePending,
		RunAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestEnqueueAndGet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	inv := newInvocation("send-report", "default")
	if err := s.Enqueue(ctx, inv); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := s.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "send-report" || got.State != task.StatePending {
		t.Errorf("got %+v", got)
	}

	if err := s.Enqueue(ctx, inv); !errors.Is(err, vegetables.ErrInvocationExists) {
		t.Fatalf("duplicate enqueue: got %v, want ErrInvocationExists", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := memory.New()
	_, err := s.Get(context.Background(), id.NewTaskID())
	if !errors.Is(err, vegetables.ErrInvocationNotFound) {
		t.Fatalf("got %v, want ErrInvocationNotFound", err)
	}
}

func TestDequeueClaimsAndOrders(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	early := newInvocation("early", "default")
	early.RunAt = time.Now().UTC().Add(-2 * time.Minute)
	late := newInvocation("late", "default")
	late.RunAt = time.Now().UTC().Add(-1 * time.Minute)
	future := newInvocation("future", "default")
	future.RunAt = time.Now().UTC().Add(time.Hour)
	other := newInvocation("other", "reports")

	for _, inv := range []*task.Invocation{late, future, early, other} {
		if err := s.Enqueue(ctx, inv); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	got, err := s.Dequeue(ctx, []string{"default"}, 10)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("dequeued %d, want 2 (future and foreign-queue excluded)", len(got))
	}
	if got[0].Name != "early" || got[1].Name != "late" {
		t.Errorf("order = %s, %s", got[0].Name, got[1].Name)
	}
	for _, inv := range got {
		if inv.State != task.StateRunning || inv.StartedAt == nil {
			t.Errorf("claimed invocation not running: %+v", inv)
		}
	}

	// A second dequeue finds nothing: the claim flipped them to running.
	again, err := s.Dequeue(ctx, []string{"default"}, 10)
	if err != nil {
		t.Fatalf("second dequeue: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second dequeue claimed %d invocations", len(again))
	}
}

func TestDequeueRespectsLimit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for range 5 {
		if err := s.Enqueue(ctx, newInvocation("bulk", "default")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	got, err := s.Dequeue(ctx, []string{"default"}, 3)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("dequeued %d, want 3", len(got))
	}
}

func TestUpdateAndListByState(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	inv := newInvocation("flaky", "default")
	if err := s.Enqueue(ctx, inv); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	inv.State = task.StateFailed
	inv.LastError = "boom"
	if err := s.Update(ctx, inv); err != nil {
		t.Fatalf("update: %v", err)
	}

	failed, err := s.ListByState(ctx, task.StateFailed, task.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].LastError != "boom" {
		t.Fatalf("failed = %+v", failed)
	}

	missing := newInvocation("ghost", "default")
	if err := s.Update(ctx, missing); !errors.Is(err, vegetables.ErrInvocationNotFound) {
		t.Fatalf("update missing: got %v", err)
	}
}

func TestCountAndQueues(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for _, q := range []string{"default", "default", "reports"} {
		if err := s.Enqueue(ctx, newInvocation("n", q)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	n, err := s.Count(ctx, task.CountOpts{Queue: "default"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	n, err = s.Count(ctx, task.CountOpts{State: task.StatePending})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("pending count = %d, want 3", n)
	}

	queues, err := s.Queues(ctx)
	if err != nil {
		t.Fatalf("queues: %v", err)
	}
	if len(queues) != 2 || queues[0] != "default" || queues[1] != "reports" {
		t.Errorf("queues = %v", queues)
	}
}

func TestDelete(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	inv := newInvocation("gone", "default")
	if err := s.Enqueue(ctx, inv); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := s.Delete(ctx, inv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, inv.ID); !errors.Is(err, vegetables.ErrInvocationNotFound) {
		t.Fatalf("get deleted: got %v", err)
	}
	if err := s.Delete(ctx, inv.ID); !errors.Is(err, vegetables.ErrInvocationNotFound) {
		t.Fatalf("double delete: got %v", err)
	}
}
