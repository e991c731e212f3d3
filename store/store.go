// Package store defines the composite persistence interface the engine
// runs on.
//
// The invocation contract lives in [task.Store]; this package adds the
// lifecycle methods a backend needs (Migrate, Ping, Close). A single
// backend implements Store to serve the whole engine.
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/redis — Redis backend, queues as Sorted Sets
//   - store/postgres — PostgreSQL backend using pgx/v5
//
// Call Migrate once at startup; for schemaless backends it is a no-op.
package store

import (
	"context"

	"github.com/stevearc/eat-your-vegetables/task"
)

// Store is the composite persistence interface.
type Store interface {
	task.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
