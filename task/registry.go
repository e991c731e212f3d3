package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	vegetables "github.com/stevearc/eat-your-vegetables"
)

// HandlerFunc is a type-erased task handler that accepts a raw JSON
// payload. The typed Definition[T] is converted to a HandlerFunc at
// registration time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Registered pairs a type-erased handler with the options captured from
// its definition.
type Registered struct {
	Name    string
	Handler HandlerFunc
	Opts    Options
}

// Registry maps task names to registered handlers. Every registry is bound
// to a composed Base; declaring tasks without one is a caller error.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	base  *Base
	tasks map[string]*Registered
}

// NewRegistry creates a task registry bound to the composed base.
func NewRegistry(base *Base) (*Registry, error) {
	if base == nil {
		return nil, fmt.Errorf("new task registry: %w", vegetables.ErrNotComposed)
	}
	return &Registry{
		base:  base,
		tasks: make(map[string]*Registered),
	}, nil
}

// Register registers a typed task definition. The generic handler is
// wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Register[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, payload []byte) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("unmarshal payload for task %q: %w", def.Name, err)
			}
		}
		return def.Handler(ctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[def.Name] = &Registered{
		Name:    def.Name,
		Handler: handler,
		Opts:    def.Opts,
	}
}

// Get returns the registered task for the given name.
// Returns false if no task is registered.
func (r *Registry) Get(name string) (*Registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Has reports whether a task is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[name]
	return ok
}

// Names returns all registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}

// Base returns the composed base this registry is bound to.
func (r *Registry) Base() *Base {
	return r.base
}
