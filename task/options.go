package task

import "time"

// Options configures per-task behavior such as retries, queue, and the
// execution lock.
type Options struct {
	// Queue is the queue name invocations are enqueued to.
	Queue string

	// MaxRetries is the maximum number of retry attempts before the
	// invocation fails terminally.
	MaxRetries int

	// Timeout is the maximum duration an invocation may run before its
	// context is cancelled. Zero means no deadline.
	Timeout time.Duration

	// Lock gates execution on a named lock: at most one live execution of
	// a given lock name across the whole worker fleet. An invocation that
	// finds the lock held is skipped, not failed.
	Lock bool

	// LockTTL bounds how long an abandoned lock blocks other workers. It
	// must exceed the task's expected maximum runtime; a body that overruns
	// it risks a second instance starting concurrently.
	LockTTL time.Duration

	// LockKey derives the lock name from the invocation payload. Nil means
	// the task name, serializing all invocations of the task.
	LockKey func(payload []byte) string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Queue:      "default",
		MaxRetries: 3,
		Timeout:    5 * time.Minute,
		LockTTL:    2 * time.Minute,
	}
}

// Option is a functional option for configuring a task definition.
type Option func(*Options)

// WithQueue sets the queue name for the task.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithTimeout sets the maximum execution duration for the task.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithLock gates execution on a lock named after the task.
func WithLock() Option {
	return func(o *Options) {
		o.Lock = true
	}
}

// WithLockTTL sets the lock time-to-live. Implies WithLock.
func WithLockTTL(d time.Duration) Option {
	return func(o *Options) {
		o.Lock = true
		o.LockTTL = d
	}
}

// WithLockKey derives the lock name from the payload, so independent
// payloads run concurrently while identical ones exclude each other.
// Implies WithLock.
func WithLockKey(fn func(payload []byte) string) Option {
	return func(o *Options) {
		o.Lock = true
		o.LockKey = fn
	}
}
