package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for claim tracing.
const tracerName = "github.com/DiOS-Analysis/Backend"

// Tracing returns middleware that wraps each claim in an OpenTelemetry span.
// Without a global TracerProvider the noop tracer is used.
//
// Span attributes: dios.worker.id, dios.device.udid; after the claim
// dios.claim.outcome, dios.claim.attempts and, when a job was returned,
// dios.job.id. On error the span status is codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		ctx, span := tracer.Start(ctx, "dios.job.claim",
			trace.WithAttributes(
				attribute.String("dios.worker.id", c.WorkerID.String()),
				attribute.String("dios.device.udid", c.DeviceUDID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		span.SetAttributes(
			attribute.String("dios.claim.outcome", c.Outcome),
			attribute.Int("dios.claim.attempts", c.Attempts),
		)
		if !c.JobID.IsNil() {
			span.SetAttributes(attribute.String("dios.job.id", c.JobID.String()))
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}
