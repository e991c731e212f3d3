package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
)

// Memory is an in-process lock factory. It coordinates goroutines within
// one worker process only — use it for development, testing, and
// single-node deployments.
type Memory struct {
	clock clockwork.Clock

	mu   sync.Mutex
	held map[string]memoryRecord
}

type memoryRecord struct {
	owner     string
	expiresAt time.Time
}

// MemoryOption configures a Memory factory.
type MemoryOption func(*Memory)

// WithClock substitutes the wall clock, letting tests drive TTL expiry.
func WithClock(c clockwork.Clock) MemoryOption {
	return func(m *Memory) { m.clock = c }
}

// NewMemory creates an in-process lock factory.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		clock: clockwork.NewRealClock(),
		held:  make(map[string]memoryRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire grants the lock unless an unexpired record exists for name.
// Expired records are taken over regardless of whether the previous
// holder ever released (crashed-holder recovery).
func (m *Memory) Acquire(_ context.Context, name string, ttl time.Duration) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if rec, ok := m.held[name]; ok && rec.expiresAt.After(now) {
		return nil, vegetables.ErrBusy
	}

	owner := id.NewOwnerToken()
	expires := now.Add(ttl)
	m.held[name] = memoryRecord{owner: owner, expiresAt: expires}
	return &Lock{Name: name, Owner: owner, ExpiresAt: expires}, nil
}

// Renew extends the expiry while the record is still owned and unexpired.
func (m *Memory) Renew(_ context.Context, l *Lock, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	rec, ok := m.held[l.Name]
	if !ok || rec.owner != l.Owner || !rec.expiresAt.After(now) {
		return vegetables.ErrLockLost
	}

	expires := now.Add(ttl)
	m.held[l.Name] = memoryRecord{owner: l.Owner, expiresAt: expires}
	l.ExpiresAt = expires
	return nil
}

// Release removes the record if still owned by the caller. Always nil.
func (m *Memory) Release(_ context.Context, l *Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.held[l.Name]; ok && rec.owner == l.Owner {
		delete(m.held, l.Name)
	}
	return nil
}
