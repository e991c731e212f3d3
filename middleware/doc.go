// Package middleware provides composable middleware for invocation
// execution.
//
// A [Middleware] is a function that wraps an invocation handler. Middleware
// are composed into a chain using [Chain] and applied around each task
// body. They are applied right-to-left: the first middleware in the slice
// is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs task name, queue, duration, and outcome
//   - [Recover] — catches panics and converts them to [PanicError]
//   - [Timeout] — cancels the invocation context after its deadline;
//     [TimeoutWithFallback] adds a default for tasks that declare none
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-task duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv *task.Invocation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
