package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/DiOS-Analysis/Backend/ext"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

// counterTotals sums each Int64 counter across its data points.
func counterTotals(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	return totals
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	j := job.New(job.TypeRunApp, nil)

	tests := []struct {
		name   string
		fire   func(e *observability.MetricsExtension) error
		metric string
	}{
		{"created", func(e *observability.MetricsExtension) error { return e.OnJobCreated(ctx, j) }, "dios.job.created"},
		{"state", func(e *observability.MetricsExtension) error {
			return e.OnJobStateChanged(ctx, j.ID, job.StateRunning)
		}, "dios.job.state_changed"},
		{"resumed", func(e *observability.MetricsExtension) error { return e.OnJobResumed(ctx, j) }, "dios.claim.resumed"},
		{"claimed", func(e *observability.MetricsExtension) error { return e.OnJobClaimed(ctx, j, 1) }, "dios.claim.claimed"},
		{"rejected", func(e *observability.MetricsExtension) error { return e.OnClaimRejected(ctx, j, "dev-1") }, "dios.claim.rejected"},
		{"no job", func(e *observability.MetricsExtension) error {
			return e.OnNoJobAvailable(ctx, id.NewWorkerID(), "dev-1", 0)
		}, "dios.claim.no_job"},
		{"exhausted", func(e *observability.MetricsExtension) error {
			return e.OnClaimExhausted(ctx, id.NewWorkerID(), "dev-1", 256)
		}, "dios.claim.exhausted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			totals := counterTotals(t, reader)
			if totals[tt.metric] != 1 {
				t.Errorf("%s: want 1, got %d (all: %v)", tt.metric, totals[tt.metric], totals)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	j := job.New(job.TypeRunApp, nil)
	w := id.NewWorkerID()

	reg.EmitJobCreated(ctx, j)
	reg.EmitClaimRejected(ctx, j, "dev-1")
	reg.EmitClaimRejected(ctx, j, "dev-1")
	reg.EmitJobClaimed(ctx, j, 3)
	reg.EmitNoJobAvailable(ctx, w, "dev-2", 0)

	totals := counterTotals(t, reader)
	want := map[string]int64{
		"dios.job.created":    1,
		"dios.claim.rejected": 2,
		"dios.claim.claimed":  1,
		"dios.claim.no_job":   1,
	}
	for name, v := range want {
		if totals[name] != v {
			t.Errorf("%s: want %d, got %d", name, v, totals[name])
		}
	}
}

func TestLoggingExtension(t *testing.T) {
	var buf bytes.Buffer
	l := observability.NewLoggingExtension(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	reg := ext.NewRegistry(slog.Default())
	reg.Register(l)

	ctx := context.Background()
	j := job.New(job.TypeInstallApp, nil)
	reg.EmitJobCreated(ctx, j)
	reg.EmitJobStateChanged(ctx, j.ID, job.StateFinished)
	reg.EmitClaimRejected(ctx, j, "dev-1")
	reg.EmitClaimExhausted(ctx, id.NewWorkerID(), "dev-1", 4)
	reg.EmitShutdown(ctx)

	out := buf.String()
	for _, want := range []string{
		"job created", "type=install_app",
		"job state changed", "state=finished",
		"incompatible claim rolled back", "device_udid=dev-1",
		"claim attempt cap reached", "attempts=4",
		"shutting down",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
