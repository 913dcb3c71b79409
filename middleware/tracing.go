package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MaherFayad/ga-gate/request"
)

// tracerName is the instrumentation scope name for gate tracing.
const tracerName = "github.com/MaherFayad/ga-gate"

// Tracing returns middleware that wraps the upstream dispatch in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: gate.request.id, gate.request.endpoint,
// gate.request.attempt, gate.tenant.id, gate.user.id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *request.Request, next Handler) error {
		ctx, span := tracer.Start(ctx, "gate.request.execute",
			trace.WithAttributes(
				attribute.String("gate.request.id", r.ID.String()),
				attribute.String("gate.request.endpoint", r.Endpoint),
				attribute.Int("gate.request.attempt", r.AttemptCount+1),
				attribute.String("gate.tenant.id", r.TenantID),
				attribute.String("gate.user.id", r.UserID),
			),
			trace.WithSpanKind(trace.SpanKindClient),
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
