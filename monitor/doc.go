// Package monitor serves a small operator HTTP API over the running
// system: declared tasks, the merged schedule, queue depths, invocation
// listings, and replay of terminal invocations. It is meant for
// dashboards and operators, not for enqueuing new work.
package monitor
