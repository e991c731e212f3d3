package task

import (
	"context"

	"github.com/stevearc/eat-your-vegetables/id"
)

// ListOpts controls pagination and filtering for invocation list queries.
type ListOpts struct {
	// Limit is the maximum number of invocations to return. Zero means no
	// limit.
	Limit int
	// Offset is the number of invocations to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// CountOpts controls filtering for invocation count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by invocation state. Empty means all states.
	State State
}

// Store defines the persistence contract for invocations.
type Store interface {
	// Enqueue persists a new invocation in pending state.
	Enqueue(ctx context.Context, inv *Invocation) error

	// Dequeue atomically claims up to limit due pending invocations from
	// the given queues, sets them to running, and returns them. Invocations
	// are ordered by RunAt ascending.
	Dequeue(ctx context.Context, queues []string, limit int) ([]*Invocation, error)

	// Get retrieves an invocation by ID.
	Get(ctx context.Context, taskID id.TaskID) (*Invocation, error)

	// Update persists changes to an existing invocation.
	Update(ctx context.Context, inv *Invocation) error

	// Delete removes an invocation by ID.
	Delete(ctx context.Context, taskID id.TaskID) error

	// ListByState returns invocations matching the given state.
	ListByState(ctx context.Context, state State, opts ListOpts) ([]*Invocation, error)

	// Count returns the number of invocations matching the given options.
	Count(ctx context.Context, opts CountOpts) (int64, error)

	// Queues returns the names of all queues that have ever held an
	// invocation.
	Queues(ctx context.Context) ([]string, error)
}
