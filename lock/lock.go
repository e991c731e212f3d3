package lock

import (
	"context"
	"time"
)

// Lock is a named, time-bounded mutual-exclusion token. At most one live,
// unexpired lock exists for a given name at any time across the fleet.
type Lock struct {
	// Name identifies the protected resource — typically a task identity
	// plus an optional argument fingerprint.
	Name string

	// Owner is an opaque token identifying the holder. A different holder
	// can never release or renew this record.
	Owner string

	// ExpiresAt is the absolute time after which the lock is considered
	// abandoned and may be taken by a new owner.
	ExpiresAt time.Time
}

// Factory creates and manages locks against a shared backend.
type Factory interface {
	// Acquire attempts to create a lock record for name valid until
	// now+ttl. It returns vegetables.ErrBusy when an unexpired record is
	// held by a different owner.
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error)

	// Renew extends the lock's expiry to now+ttl if the caller still owns
	// the record, updating l.ExpiresAt in place. It returns
	// vegetables.ErrLockLost when the record expired or changed owner.
	Renew(ctx context.Context, l *Lock, ttl time.Duration) error

	// Release destroys the record if the caller owns it. Idempotent:
	// releasing an expired or already-released lock returns nil.
	Release(ctx context.Context, l *Lock) error
}
