package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/middleware"
)

func newTestCall() *middleware.Call {
	return &middleware.Call{WorkerID: id.NewWorkerID(), DeviceUDID: "00008030-001A"}
}

// claimed simulates a terminal handler that claimed a job.
func claimed(c *middleware.Call, jobID id.JobID) middleware.Handler {
	return func(_ context.Context) error {
		c.Outcome = "claimed"
		c.JobID = jobID
		c.Attempts = 3
		return nil
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *middleware.Call, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *middleware.Call, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := chain(context.Background(), newTestCall(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	err := chain(context.Background(), newTestCall(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_SharesCall(t *testing.T) {
	var seen string
	outer := func(ctx context.Context, c *middleware.Call, next middleware.Handler) error {
		err := next(ctx)
		seen = c.Outcome
		return err
	}

	c := newTestCall()
	if err := middleware.Chain(outer)(context.Background(), c, claimed(c, id.NewJobID())); err != nil {
		t.Fatal(err)
	}
	if seen != "claimed" {
		t.Fatalf("outer middleware saw outcome %q, want claimed", seen)
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *middleware.Call, next middleware.Handler) error {
		return next(ctx)
	}
	want := errors.New("handler error")

	err := middleware.Chain(mw)(context.Background(), newTestCall(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	err := mw(context.Background(), newTestCall(), func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got := err.Error(); got != "panic in claim for device 00008030-001A: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	called := false
	err := mw(context.Background(), newTestCall(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name    string
		handler func(c *middleware.Call) middleware.Handler
		want    []string
		wantErr bool
	}{
		{
			name:    "claimed",
			handler: func(c *middleware.Call) middleware.Handler { return claimed(c, id.NewJobID()) },
			want:    []string{"claim completed", "outcome=claimed", "attempts=3", "job_id=job_"},
		},
		{
			name: "no job",
			handler: func(c *middleware.Call) middleware.Handler {
				return func(context.Context) error { c.Outcome = "no_job_available"; return nil }
			},
			want: []string{"claim completed", "outcome=no_job_available"},
		},
		{
			name: "error",
			handler: func(*middleware.Call) middleware.Handler {
				return func(context.Context) error { return errors.New("store down") }
			},
			want:    []string{"claim failed", "error=\"store down\""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			c := newTestCall()

			err := middleware.Logging(logger)(context.Background(), c, tt.handler(c))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestTimeout_SetsDeadline(t *testing.T) {
	mw := middleware.Timeout(slog.Default(), time.Minute)

	err := mw(context.Background(), newTestCall(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected deadline on claim context")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	mw := middleware.Timeout(slog.Default(), 0)

	err := mw(context.Background(), newTestCall(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline on claim context")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
