package task

import (
	"context"
	"fmt"
	"time"

	"github.com/stevearc/eat-your-vegetables/id"
)

// Replay re-enqueues a terminal invocation as a fresh pending one: new
// ID, zero retry count, immediate RunAt. The original invocation is left
// untouched as history. Replaying a non-terminal invocation is refused —
// it would duplicate work that is still in flight.
func Replay(ctx context.Context, s Store, taskID id.TaskID) (*Invocation, error) {
	prev, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !prev.State.Terminal() {
		return nil, fmt.Errorf("replay %s: invocation is %s, not terminal", taskID, prev.State)
	}

	now := time.Now().UTC()
	inv := &Invocation{
		ID:         id.NewTaskID(),
		Name:       prev.Name,
		Queue:      prev.Queue,
		Payload:    prev.Payload,
		State:      StatePending,
		MaxRetries: prev.MaxRetries,
		Timeout:    prev.Timeout,
		RunAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Enqueue(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}
