package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/stevearc/eat-your-vegetables/task"
)

// PanicError reports a panic recovered from a task body. Callers can
// detect it with errors.As to distinguish a crash from an ordinary
// handler error.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Recover returns middleware that converts panics in the handler chain
// into a *PanicError, logging the stack trace. One bad task body never
// takes down the worker process; the invocation fails like any other
// handler error and consumes a retry.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("task handler panicked",
					slog.String("task", inv.Name),
					slog.String("invocation_id", inv.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = &PanicError{Task: inv.Name, Value: r}
			}
		}()
		return next(ctx)
	}
}
