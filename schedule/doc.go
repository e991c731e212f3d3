// Package schedule turns the entries accumulated on the configurator into
// a validated, runnable periodic schedule.
//
// [Merge] runs once at startup, after the task base is composed. It checks
// every entry's task reference against the registry (an unresolved
// reference is fatal), parses the cron expressions, and JSON-marshals the
// payloads. The result is immutable.
//
// [Beat] is the scheduler process: a tick loop that enqueues an invocation
// for each due entry. Beat follows the single-scheduler model: run exactly
// one beat process per deployment. The optional per-entry lock only guards
// against overlap during crash recovery or a botched rollout; it is not a
// leader election.
package schedule
