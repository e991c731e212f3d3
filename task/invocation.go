package task

import (
	"time"

	"github.com/stevearc/eat-your-vegetables/id"
)

// State represents the lifecycle state of an invocation.
type State string

const (
	// StatePending means the invocation is waiting to be picked up by a
	// worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the invocation.
	StateRunning State = "running"
	// StateSucceeded means the invocation finished successfully.
	StateSucceeded State = "succeeded"
	// StateFailed means the invocation failed and will not be retried.
	StateFailed State = "failed"
	// StateRetrying means the invocation failed but is scheduled for retry.
	StateRetrying State = "retrying"
	// StateSkipped means the invocation never ran because another
	// invocation held its lock. Skipped is a terminal non-failure state.
	StateSkipped State = "skipped"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped:
		return true
	}
	return false
}

// Invocation represents one execution request of a task, persisted by a
// store and processed by a worker.
type Invocation struct {
	ID          id.TaskID     `json:"id"`
	Name        string        `json:"name"`
	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	MaxRetries  int           `json:"max_retries"`
	RetryCount  int           `json:"retry_count"`
	LastError   string        `json:"last_error,omitempty"`
	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
