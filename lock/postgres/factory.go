// Package postgres implements a distributed lock factory on PostgreSQL.
// The backend is a single table with one row per lock name; acquisition
// is a conditional upsert that only steals rows whose expiry has passed.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	vegetables "github.com/stevearc/eat-your-vegetables"
	"github.com/stevearc/eat-your-vegetables/id"
	"github.com/stevearc/eat-your-vegetables/lock"
)

// Factory implements lock.Factory backed by PostgreSQL. The caller owns
// the pool lifecycle.
type Factory struct {
	pool *pgxpool.Pool
}

var _ lock.Factory = (*Factory)(nil)

// New creates a Postgres-backed lock factory.
func New(pool *pgxpool.Pool) *Factory {
	return &Factory{pool: pool}
}

// Migrate creates the lock table if it does not exist.
func (f *Factory) Migrate(ctx context.Context) error {
	_, err := f.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS nom_locks (
			name       text PRIMARY KEY,
			owner      text NOT NULL,
			expires_at timestamptz NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("lock/postgres: migrate: %w", err)
	}
	return nil
}

// Acquire inserts the lock row, or takes over an existing row whose
// expiry has passed (crashed-holder recovery). An unexpired row held by
// another owner yields ErrBusy.
func (f *Factory) Acquire(ctx context.Context, name string, ttl time.Duration) (*lock.Lock, error) {
	owner := id.NewOwnerToken()
	expires := time.Now().UTC().Add(ttl)

	tag, err := f.pool.Exec(ctx, `
		INSERT INTO nom_locks (name, owner, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		WHERE nom_locks.expires_at <= now()`,
		name, owner, expires)
	if err != nil {
		return nil, fmt.Errorf("lock/postgres: acquire %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, vegetables.ErrBusy
	}

	return &lock.Lock{Name: name, Owner: owner, ExpiresAt: expires}, nil
}

// Renew pushes the row's expiry forward if the caller still owns it.
func (f *Factory) Renew(ctx context.Context, l *lock.Lock, ttl time.Duration) error {
	expires := time.Now().UTC().Add(ttl)

	tag, err := f.pool.Exec(ctx, `
		UPDATE nom_locks
		SET expires_at = $3
		WHERE name = $1 AND owner = $2 AND expires_at > now()`,
		l.Name, l.Owner, expires)
	if err != nil {
		return fmt.Errorf("lock/postgres: renew %q: %w", l.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return vegetables.ErrLockLost
	}
	l.ExpiresAt = expires
	return nil
}

// Release deletes the row if the caller still owns it. Rows already
// expired, stolen, or deleted are left alone and no error is returned.
func (f *Factory) Release(ctx context.Context, l *lock.Lock) error {
	_, err := f.pool.Exec(ctx,
		`DELETE FROM nom_locks WHERE name = $1 AND owner = $2`,
		l.Name, l.Owner)
	if err != nil {
		return fmt.Errorf("lock/postgres: release %q: %w", l.Name, err)
	}
	return nil
}
