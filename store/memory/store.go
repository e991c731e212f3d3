// Package memory provides a fully in-memory store.Store implementation.
// Safe for concurrent access. Intended for unit testing and development;
// it gives no cross-process visibility, so pair it with the memory broker
// and lock factory only.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/task"
)

var _ task.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu          sync.RWMutex
	invocations map[string]*task.Invocation
	queues      map[string]struct{}
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		invocations: make(map[string]*task.Invocation),
		queues:      make(map[string]struct{}),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// Enqueue persists a new invocation in pending state.
func (m *Store) Enqueue(_ context.Context, inv *task.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inv.ID.String()
	if _, exists := m.invocations[key]; exists {
		return vegetables.ErrInvocationExists
	}
	cp := *inv
	m.invocations[key] = &cp
	m.queues[inv.Queue] = struct{}{}
	return nil
}

// Dequeue atomically claims up to limit due invocations from the given
// queues, sets them to running, and returns them ordered by RunAt.
func (m *Store) Dequeue(_ context.Context, queues []string, limit int) ([]*task.Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*task.Invocation, 0, len(m.invocations))
	for _, inv := range m.invocations {
		if inv.State != task.StatePending && inv.State != task.StateRetrying {
			continue
		}
		if !inv.RunAt.IsZero() && inv.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[inv.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, inv)
	}

	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*task.Invocation, len(candidates))
	for i, inv := range candidates {
		inv.State = task.StateRunning
		n := now
		inv.StartedAt = &n
		inv.UpdatedAt = now
		// Return a copy so callers can mutate without racing with the store.
		cp := *inv
		result[i] = &cp
	}
	return result, nil
}

// Get retrieves an invocation by ID.
func (m *Store) Get(_ context.Context, taskID id.TaskID) (*task.Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invocations[taskID.String()]
	if !ok {
		return nil, vegetables.ErrInvocationNotFound
	}
	cp := *inv
	return &cp, nil
}

// Update persists changes to an existing invocation.
func (m *Store) Update(_ context.Context, inv *task.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := inv.ID.String()
	if _, ok := m.invocations[key]; !ok {
		return vegetables.ErrInvocationNotFound
	}
	cp := *inv
	cp.UpdatedAt = time.Now().UTC()
	m.invocations[key] = &cp
	m.queues[inv.Queue] = struct{}{}
	return nil
}

// Delete removes an invocation by ID.
func (m *Store) Delete(_ context.Context, taskID id.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := taskID.String()
	if _, ok := m.invocations[key]; !ok {
		return vegetables.ErrInvocationNotFound
	}
	delete(m.invocations, key)
	return nil
}

// ListByState returns invocations matching the given state.
func (m *Store) ListByState(_ context.Context, state task.State, opts task.ListOpts) ([]*task.Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*task.Invocation, 0)
	for _, inv := range m.invocations {
		if inv.State != state {
			continue
		}
		if opts.Queue != "" && inv.Queue != opts.Queue {
			continue
		}
		cp := *inv
		matches = append(matches, &cp)
	}

	sort.Slice(matches, func(i, k int) bool {
		return matches[i].CreatedAt.Before(matches[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matches) {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// Count returns the number of invocations matching the given options.
func (m *Store) Count(_ context.Context, opts task.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, inv := range m.invocations {
		if opts.Queue != "" && inv.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && inv.State != opts.State {
			continue
		}
		n++
	}
	return n, nil
}

// Queues returns the names of all queues that have held an invocation.
func (m *Store) Queues(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.queues))
	for q := range m.queues {
		names = append(names, q)
	}
	sort.Strings(names)
	return names, nil
}
