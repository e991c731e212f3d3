package task

import "context"

// Definition is a typed task definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this task type.
	Name string

	// Handler is the function that processes the task payload. The context
	// carries the invocation Scope.
	Handler func(ctx context.Context, payload T) error

	// Opts configures the queue, retries, timeout, and execution lock.
	Opts Options
}

// NewDefinition creates a typed task definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// LockName resolves the lock name for an invocation payload. Empty when
// the definition does not declare a lock.
func (o Options) LockName(taskName string, payload []byte) string {
	if !o.Lock {
		return ""
	}
	if o.LockKey != nil {
		return o.LockKey(payload)
	}
	return taskName
}
