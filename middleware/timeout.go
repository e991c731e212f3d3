package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stevearc/eat-your-vegetables/task"
)

// Timeout returns middleware that enforces the invocation's declared
// execution deadline. Invocations without a timeout run unbounded.
func Timeout(logger *slog.Logger) Middleware {
	return TimeoutWithFallback(logger, 0)
}

// TimeoutWithFallback is Timeout with a fleet-wide default: invocations
// whose task declares no timeout get the fallback deadline instead. A zero
// fallback means such invocations run unbounded. When the deadline is
// exceeded the handler's context is cancelled and the resulting error
// names the invocation and the limit it blew.
func TimeoutWithFallback(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) error {
		limit := inv.Timeout
		if limit <= 0 {
			limit = fallback
		}
		if limit <= 0 {
			return next(ctx)
		}

		logger.Debug("invocation deadline set",
			slog.String("invocation_id", inv.ID.String()),
			slog.Duration("timeout", limit),
		)
		ctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		err := next(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("invocation %s exceeded its %s deadline: %w", inv.ID, limit, err)
		}
		return err
	}
}
