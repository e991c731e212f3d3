// Package vegetables is an organizational layer for distributed background
// tasks. It lets independently authored extensions contribute capabilities —
// task methods, periodic schedule entries, shared settings — to a single
// composed task base before any task is declared, and coordinates task
// execution across a worker fleet with named, TTL-bounded distributed locks.
//
// # Lifecycle
//
// At startup a Configurator is handed to every extension in configured
// order. Once all extensions have registered, the accumulated mixins are
// composed into one frozen task base, schedule entries are merged into the
// beat schedule, and tasks are declared against the composed base. After
// composition the Configurator is read-only; mutation fails with
// ErrConfigurationFrozen.
//
// # Processes
//
// Three processes share one config file: the worker (polls queues and
// executes invocations), the beat (fires periodic schedule entries), and
// the monitor (HTTP status and replay API). See cmd/nom.
//
// # Locks
//
// A task may declare a lock name; the execution guard then guarantees at
// most one live execution of that name across the whole fleet. Lock
// contention is an expected outcome, not a fault: the losing invocation
// records a skipped result and the next scheduled tick tries again. TTL
// expiry is the crash-safety net — a worker that dies mid-task leaves a
// lock that becomes harvestable once its TTL passes.
package vegetables
