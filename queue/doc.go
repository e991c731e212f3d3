// Package queue provides per-queue dequeue throttling for the worker
// pool: a token-bucket rate limit and a concurrency cap per queue name.
//
// Queues without an explicit limit run unthrottled; the pool-wide
// concurrency still applies. The pool calls Acquire before executing a
// dequeued invocation and Release when it finishes; a denied Acquire
// leaves the invocation for a later poll.
package queue
