// Package lock defines named, TTL-bounded exclusive locks shared across
// the worker fleet, and the Factory interface the execution guard and the
// beat scheduler coordinate through.
//
// The contract is small on purpose:
//
//   - Acquire returns vegetables.ErrBusy while an unexpired lock for the
//     name is held by a different owner. Busy is an expected outcome of
//     contention, not a fault; there is no queueing and no fairness among
//     competing acquirers.
//   - Renew extends the expiry only while the caller still owns the
//     record; vegetables.ErrLockLost means it expired or was taken over.
//   - Release is idempotent. Releasing an expired or already-released
//     lock is a no-op: a worker that crashes mid-task must never leave an
//     unreleasable lock, and TTL expiry is the safety net that makes the
//     record harvestable again.
//
// Backends: Noop (always grants), Memory (single process), and the
// lock/flock, lock/redis, and lock/postgres subpackages.
package lock
