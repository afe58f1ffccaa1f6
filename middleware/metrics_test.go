package middleware_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/DiOS-Analysis/Backend/id"
	mw "github.com/DiOS-Analysis/Backend/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func outcomeOf(dp metricdata.HistogramDataPoint[float64]) string {
	v, _ := dp.Attributes.Value("outcome")
	return v.AsString()
}

func TestMetrics_RecordsDuration(t *testing.T) {
	tests := []struct {
		name    string
		handler func(c *mw.Call) mw.Handler
		outcome string
	}{
		{"claimed", func(c *mw.Call) mw.Handler { return claimed(c, id.NewJobID()) }, "claimed"},
		{"error", func(*mw.Call) mw.Handler {
			return func(context.Context) error { return errors.New("boom") }
		}, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			m := mw.MetricsWithMeter(mp.Meter("test"))
			c := newTestCall()

			_ = m(context.Background(), c, tt.handler(c))

			rm := collectMetrics(t, reader)
			metric := findMetric(rm, "dios.claim.duration")
			if metric == nil {
				t.Fatal("dios.claim.duration metric not found")
			}
			hist, ok := metric.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("expected Histogram[float64] data type")
			}
			if len(hist.DataPoints) != 1 {
				t.Fatalf("expected 1 data point, got %d", len(hist.DataPoints))
			}
			if hist.DataPoints[0].Count != 1 {
				t.Errorf("expected count=1, got %d", hist.DataPoints[0].Count)
			}
			if got := outcomeOf(hist.DataPoints[0]); got != tt.outcome {
				t.Errorf("outcome = %q, want %q", got, tt.outcome)
			}
		})
	}
}

func TestMetrics_RecordsAttempts(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))
	c := newTestCall()

	_ = m(context.Background(), c, claimed(c, id.NewJobID()))

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "dios.claim.attempts")
	if metric == nil {
		t.Fatal("dios.claim.attempts metric not found")
	}
	hist, ok := metric.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("expected Histogram[int64] data type")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 3 {
		t.Fatalf("attempts data points = %+v, want one with sum 3", hist.DataPoints)
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	c := newTestCall()
	if err := mw.Metrics()(context.Background(), c, claimed(c, id.NewJobID())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
