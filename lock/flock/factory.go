// Package flock implements a lock factory on advisory file locks. It
// coordinates processes sharing one host (a multi-process worker box),
// not a fleet: the lock directory must be local, and TTL expiry is not
// enforced — the kernel drops a holder's lock when its process exits, so
// crashed holders release implicitly.
package flock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/lock"
)

// Factory implements lock.Factory with flock(2) files under a shared
// directory.
type Factory struct {
	dir string

	mu   sync.Mutex
	held map[string]*flock.Flock // keyed by owner token
}

var _ lock.Factory = (*Factory)(nil)

// New creates a file-lock factory rooted at dir, creating it if needed.
func New(dir string) (*Factory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock/flock: create %q: %w", dir, err)
	}
	return &Factory{dir: dir, held: make(map[string]*flock.Flock)}, nil
}

// Acquire try-locks the file for name. A held file yields ErrBusy.
func (f *Factory) Acquire(_ context.Context, name string, ttl time.Duration) (*lock.Lock, error) {
	fl := flock.New(filepath.Join(f.dir, sanitize(name)+".lock"))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock/flock: acquire %q: %w", name, err)
	}
	if !ok {
		return nil, vegetables.ErrBusy
	}

	owner := id.NewOwnerToken()
	f.mu.Lock()
	f.held[owner] = fl
	f.mu.Unlock()

	return &lock.Lock{Name: name, Owner: owner, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Renew succeeds while the caller still holds the file. Expiry is
// advisory only for this backend.
func (f *Factory) Renew(_ context.Context, l *lock.Lock, ttl time.Duration) error {
	f.mu.Lock()
	_, ok := f.held[l.Owner]
	f.mu.Unlock()
	if !ok {
		return vegetables.ErrLockLost
	}
	l.ExpiresAt = time.Now().Add(ttl)
	return nil
}

// Release unlocks and forgets the file. Releasing twice is a no-op.
func (f *Factory) Release(_ context.Context, l *lock.Lock) error {
	f.mu.Lock()
	fl, ok := f.held[l.Owner]
	delete(f.held, l.Owner)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	if err := fl.Unlock(); err != nil {
		return fmt.Errorf("lock/flock: release %q: %w", l.Name, err)
	}
	return nil
}

// sanitize maps a lock name to a safe file name.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
