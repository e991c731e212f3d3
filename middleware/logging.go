package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stevearc/eat-your-vegetables/task"
)

// Logging returns middleware that logs the lifecycle of each invocation.
// Completion is logged at a level matching how it ended: Info for success,
// Warn when the context was cancelled out from under the body (worker
// shutdown), Error for everything else.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) error {
		attrs := []slog.Attr{
			slog.String("task", inv.Name),
			slog.String("invocation_id", inv.ID.String()),
			slog.String("queue", inv.Queue),
		}
		if inv.RetryCount > 0 {
			attrs = append(attrs, slog.Int("attempt", inv.RetryCount+1))
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "invocation started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch {
		case err == nil:
			logger.LogAttrs(ctx, slog.LevelInfo, "invocation completed", attrs...)
		case errors.Is(err, context.Canceled):
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.LogAttrs(ctx, slog.LevelWarn, "invocation cancelled", attrs...)
		default:
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.LogAttrs(ctx, slog.LevelError, "invocation failed", attrs...)
		}
		return err
	}
}
