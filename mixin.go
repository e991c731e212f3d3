package vegetables

import "context"

// Method is a capability method contributed by a mixin. Methods are looked
// up by name on the composed task base and invoked from inside task bodies
// via the invocation scope.
type Method func(ctx context.Context, args ...any) (any, error)

// Mixin is the base interface all mixins must implement. A mixin bundles
// capabilities that every task declared against the composed base can use.
//
// Each capability is a separate opt-in interface so mixins implement only
// what they need.
type Mixin interface {
	// Name returns a unique human-readable name for the mixin.
	Name() string
}

// MethodProvider contributes named methods to the composed task base.
// When two mixins contribute a method under the same name, the
// later-registered mixin wins; a mixin always wins over a builtin.
type MethodProvider interface {
	TaskMethods() map[string]Method
}

// SetupHook runs at the start of every task invocation, before the task
// body. It typically opens per-invocation resources (a transaction, a
// template context) and registers a completion callback to close them.
type SetupHook interface {
	OnTaskStart(ctx context.Context, reg CallbackRegistrar) error
}

// Outcome is the terminal result of a task invocation.
type Outcome string

const (
	// OutcomeSuccess means the task body returned without error.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the task body (or a completion callback) failed.
	OutcomeFailure Outcome = "failure"
	// OutcomeSkipped means the invocation never ran because another
	// invocation held its lock.
	OutcomeSkipped Outcome = "skipped"
)

// Result is delivered to completion callbacks when an invocation reaches a
// terminal state. The signal reflects the task body's own outcome; callback
// failures change the invocation's overall outcome but not the signal
// delivered to the remaining callbacks.
type Result struct {
	Outcome Outcome
	Err     error
}

// CompletionCallback reacts to an invocation's terminal outcome — commit on
// success, roll back on failure. Callbacks are invocation-local: registered
// during one invocation, invoked exactly once at its teardown in
// registration order, then discarded.
type CompletionCallback func(ctx context.Context, res Result) error

// CallbackRegistrar registers completion callbacks for the current
// invocation. The invocation scope implements it.
type CallbackRegistrar interface {
	OnCompletion(cb CompletionCallback)
}
