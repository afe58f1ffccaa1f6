package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for claim metrics.
const meterName = "github.com/DiOS-Analysis/Backend"

// Metrics returns middleware that records per-claim metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - dios.claim.duration (Float64Histogram): claim time in seconds,
//     with attribute outcome ("resumed", "claimed", "no_job_available"
//     or "error")
//   - dios.claim.attempts (Int64Histogram): atomic claims issued per call
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the OTel API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"dios.claim.duration",
		metric.WithDescription("Duration of claim calls in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Histogram(
		"dios.claim.attempts",
		metric.WithDescription("Atomic claims issued per claim call"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, c *Call, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		outcome := c.Outcome
		if err != nil {
			outcome = "error"
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))

		duration.Record(ctx, elapsed, attrs)
		if err == nil {
			attempts.Record(ctx, int64(c.Attempts), attrs)
		}
		return err
	}
}
