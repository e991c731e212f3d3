package task_test

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

func seedTerminal(t *testing.T, st *memory.Store, state task.State) *task.Invocation {
	t.Helper()
	now := time.Now().UTC()
	inv := &task.Invocation{
		ID:         id.NewTaskID(),
		Name:       "report",
		Queue:      "reports",
		Payload:    []byte(`{"day":"monday"}`),
		State:      task.StatePending,
		MaxRetries: 2,
		RetryCount: 2,
		Timeout:    time.Minute,
		RunAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := st.Enqueue(context.Background(), inv); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	inv.State = state
	if err := st.Update(context.Background(), inv); err != nil {
		t.Fatalf("update: %v", err)
	}
	return inv
}

func TestReplay_FailedInvocation(t *testing.T) {
	st := memory.New()
	prev := seedTerminal(t, st, task.StateFailed)

	fresh, err := task.Replay(context.Background(), st, prev.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if fresh.ID == prev.ID {
		t.Fatal("replay must mint a new ID")
	}
	if fresh.State != task.StatePending || fresh.RetryCount != 0 {
		t.Fatalf("fresh = state %s, retries %d", fresh.State, fresh.RetryCount)
	}
	if fresh.Name != prev.Name || fresh.Queue != prev.Queue || string(fresh.Payload) != string(prev.Payload) {
		t.Fatal("replay must carry over name, queue, and payload")
	}
	if fresh.MaxRetries != prev.MaxRetries || fresh.Timeout != prev.Timeout {
		t.Fatal("replay must carry over the retry budget and timeout")
	}

	// The original stays as history.
	orig, err := st.Get(context.Background(), prev.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if orig.State != task.StateFailed {
		t.Fatalf("original state = %s", orig.State)
	}
}

func TestReplay_NonTerminalRefused(t *testing.T) {
	st := memory.New()
	prev := seedTerminal(t, st, task.StateRunning)

	if _, err := task.Replay(context.Background(), st, prev.ID); err == nil {
		t.Fatal("replaying a running invocation must fail")
	}
}

func TestReplay_MissingInvocation(t *testing.T) {
	st := memory.New()
	_, err := task.Replay(context.Background(), st, id.NewTaskID())
	if !errors.Is(err, vegetables.ErrInvocationNotFound) {
		t.Fatalf("err = %v", err)
	}
}
