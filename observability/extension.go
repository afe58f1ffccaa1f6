package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/DiOS-Analysis/Backend/ext"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// meterName is the instrumentation scope of the metrics extension.
const meterName = "github.com/DiOS-Analysis/Backend/observability"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobCreated      = (*MetricsExtension)(nil)
	_ ext.JobStateChanged = (*MetricsExtension)(nil)
	_ ext.JobResumed      = (*MetricsExtension)(nil)
	_ ext.JobClaimed      = (*MetricsExtension)(nil)
	_ ext.ClaimRejected   = (*MetricsExtension)(nil)
	_ ext.NoJobAvailable  = (*MetricsExtension)(nil)
	_ ext.ClaimExhausted  = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide claim counters. Register it as an
// extension to track creation rates, claim outcomes and rollbacks.
type MetricsExtension struct {
	JobCreated      metric.Int64Counter
	JobStateChanged metric.Int64Counter
	JobResumed      metric.Int64Counter
	JobClaimed      metric.Int64Counter
	ClaimRejected   metric.Int64Counter
	NoJobAvailable  metric.Int64Counter
	ClaimExhausted  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		JobCreated:      counter("dios.job.created", "Jobs persisted"),
		JobStateChanged: counter("dios.job.state_changed", "Lifecycle state updates by state"),
		JobResumed:      counter("dios.claim.resumed", "Claims answered by resumption"),
		JobClaimed:      counter("dios.claim.claimed", "Jobs claimed and validated"),
		ClaimRejected:   counter("dios.claim.rejected", "Incompatible claims rolled back"),
		NoJobAvailable:  counter("dios.claim.no_job", "Claims that found no candidate"),
		ClaimExhausted:  counter("dios.claim.exhausted", "Claims stopped at the attempt cap"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job hooks ───────────────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	m.JobCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("type", j.Type.String())))
	return nil
}

// OnJobStateChanged implements ext.JobStateChanged.
func (m *MetricsExtension) OnJobStateChanged(ctx context.Context, _ id.JobID, state job.State) error {
	m.JobStateChanged.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state.String())))
	return nil
}

// ── Claim hooks ─────────────────────────────────────

// OnJobResumed implements ext.JobResumed.
func (m *MetricsExtension) OnJobResumed(ctx context.Context, _ *job.Job) error {
	m.JobResumed.Add(ctx, 1)
	return nil
}

// OnJobClaimed implements ext.JobClaimed.
func (m *MetricsExtension) OnJobClaimed(ctx context.Context, j *job.Job, _ int) error {
	m.JobClaimed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", j.Type.String())))
	return nil
}

// OnClaimRejected implements ext.ClaimRejected.
func (m *MetricsExtension) OnClaimRejected(ctx context.Context, _ *job.Job, _ string) error {
	m.ClaimRejected.Add(ctx, 1)
	return nil
}

// OnNoJobAvailable implements ext.NoJobAvailable.
func (m *MetricsExtension) OnNoJobAvailable(ctx context.Context, _ id.WorkerID, _ string, _ int) error {
	m.NoJobAvailable.Add(ctx, 1)
	return nil
}

// OnClaimExhausted implements ext.ClaimExhausted.
func (m *MetricsExtension) OnClaimExhausted(ctx context.Context, _ id.WorkerID, _ string, _ int) error {
	m.ClaimExhausted.Add(ctx, 1)
	return nil
}
