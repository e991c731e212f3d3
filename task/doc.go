// Package task defines the composed task base, typed task definitions,
// the invocation entity, and the persistence contract for invocations.
//
// # Composed Base
//
// A [Base] is produced exactly once per process by [Compose], after every
// extension has registered its mixins. Compose freezes the configurator,
// seeds the builtin methods, then layers each mixin's methods on top in
// registration order. On a name collision the later-registered mixin wins,
// and any mixin wins over a builtin. The Base is immutable afterwards and
// safe for concurrent use.
//
// # Declaring a Task
//
// Use [Definition] with a typed handler. The payload is JSON-serialized at
// enqueue time and deserialized before the handler runs:
//
//	var SendReport = task.NewDefinition("send_report",
//	    func(ctx context.Context, input ReportInput) error {
//	        sc, _ := task.FromContext(ctx)
//	        out, err := sc.Call(ctx, "render", input.TemplateName)
//	        ...
//	    },
//	    task.WithQueue("reports"),
//	    task.WithLock(),
//	)
//
// Definitions are registered on a [Registry] built around the composed
// Base; declaring tasks before composition is a caller error and fails
// with ErrNotComposed.
//
// # Invocation Scope
//
// Every invocation carries a [Scope] in its context. The scope dispatches
// base-method calls, exposes frozen settings, registers completion
// callbacks, and lets long-running bodies renew their execution lock.
package task
