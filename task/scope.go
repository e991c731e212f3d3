package task

import (
	"context"
	"sync"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/lock"
)

// Scope is the per-invocation execution context. It is created by the
// worker before the setup hooks run and carried to the task body via the
// context. It collects completion callbacks, dispatches base-method calls,
// and holds the invocation's execution lock when one was acquired.
//
// A Scope lives for exactly one invocation and is discarded at teardown.
type Scope struct {
	base *Base
	inv  *Invocation

	mu        sync.Mutex
	callbacks []vegetables.CompletionCallback

	lockFactory lock.Factory
	lock        *lock.Lock
}

// NewScope creates the scope for one invocation.
func NewScope(base *Base, inv *Invocation) *Scope {
	return &Scope{base: base, inv: inv}
}

// OnCompletion registers a callback to run at invocation teardown.
// Callbacks run exactly once, in registration order, on every exit path.
func (s *Scope) OnCompletion(cb vegetables.CompletionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Callbacks returns the registered callbacks in registration order.
func (s *Scope) Callbacks() []vegetables.CompletionCallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vegetables.CompletionCallback, len(s.callbacks))
	copy(out, s.callbacks)
	return out
}

// Call invokes a composed base method by name.
func (s *Scope) Call(ctx context.Context, name string, args ...any) (any, error) {
	return s.base.Call(ctx, name, args...)
}

// Setting returns the frozen setting under key.
func (s *Scope) Setting(key string) (any, bool) {
	return s.base.Setting(key)
}

// Invocation returns the invocation this scope belongs to.
func (s *Scope) Invocation() *Invocation {
	return s.inv
}

// BindLock attaches the invocation's execution lock so the body can renew
// it. Called by the worker after a successful acquire.
func (s *Scope) BindLock(f lock.Factory, l *lock.Lock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockFactory = f
	s.lock = l
}

// Lock returns the held execution lock, or nil when the task declared none.
func (s *Scope) Lock() *lock.Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock
}

// RenewLock extends the execution lock's TTL. Long-running bodies should
// call it before the original TTL elapses and check for ErrLockLost before
// committing sensitive work. Returns nil when no lock is held.
func (s *Scope) RenewLock(ctx context.Context, ttl time.Duration) error {
	s.mu.Lock()
	f, l := s.lockFactory, s.lock
	s.mu.Unlock()
	if l == nil {
		return nil
	}
	return f.Renew(ctx, l, ttl)
}

type scopeKey struct{}

// WithScope attaches the scope to the context.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext extracts the invocation scope from the context. The second
// return is false outside a task invocation.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok
}
