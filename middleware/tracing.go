package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stevearc/eat-your-vegetables/task"
)

// tracerName is the instrumentation scope name for vegetables tracing.
const tracerName = "github.com/stevearc/eat-your-vegetables"

// Tracing returns middleware that wraps invocation execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: vegetables.task.id, vegetables.task.name,
// vegetables.queue, vegetables.retry_count.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "vegetables.task.execute",
			trace.WithAttributes(
				attribute.String("vegetables.task.id", inv.ID.String()),
				attribute.String("vegetables.task.name", inv.Name),
				attribute.String("vegetables.queue", inv.Queue),
				attribute.Int("vegetables.retry_count", inv.RetryCount),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
