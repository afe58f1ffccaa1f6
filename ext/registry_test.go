package ext_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/DiOS-Analysis/Backend/ext"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobCreated(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobCreated")
	return nil
}

func (e *allHooksExt) OnJobStateChanged(_ context.Context, _ id.JobID, _ job.State) error {
	e.calls = append(e.calls, "OnJobStateChanged")
	return nil
}

func (e *allHooksExt) OnJobResumed(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobResumed")
	return nil
}

func (e *allHooksExt) OnJobClaimed(_ context.Context, _ *job.Job, _ int) error {
	e.calls = append(e.calls, "OnJobClaimed")
	return nil
}

func (e *allHooksExt) OnClaimRejected(_ context.Context, _ *job.Job, _ string) error {
	e.calls = append(e.calls, "OnClaimRejected")
	return nil
}

func (e *allHooksExt) OnNoJobAvailable(_ context.Context, _ id.WorkerID, _ string, _ int) error {
	e.calls = append(e.calls, "OnNoJobAvailable")
	return nil
}

func (e *allHooksExt) OnClaimExhausted(_ context.Context, _ id.WorkerID, _ string, _ int) error {
	e.calls = append(e.calls, "OnClaimExhausted")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// claimOnlyExt only implements the claim success hook.
type claimOnlyExt struct {
	calls []string
}

func (e *claimOnlyExt) Name() string { return "claim-only" }

func (e *claimOnlyExt) OnJobClaimed(_ context.Context, _ *job.Job, _ int) error {
	e.calls = append(e.calls, "OnJobClaimed")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobClaimed(_ context.Context, _ *job.Job, _ int) error {
	return errors.New("boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	t.Parallel()
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	t.Parallel()
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	co := &claimOnlyExt{}
	r.Register(all)
	r.Register(co)

	ctx := context.Background()
	j := job.New(job.TypeRunApp, nil)

	r.EmitJobClaimed(ctx, j, 1)
	if len(all.calls) != 1 || all.calls[0] != "OnJobClaimed" {
		t.Fatalf("all: expected [OnJobClaimed], got %v", all.calls)
	}
	if len(co.calls) != 1 || co.calls[0] != "OnJobClaimed" {
		t.Fatalf("co: expected [OnJobClaimed], got %v", co.calls)
	}

	r.EmitJobResumed(ctx, j)
	if len(all.calls) != 2 || all.calls[1] != "OnJobResumed" {
		t.Fatalf("all: expected OnJobResumed as 2nd, got %v", all.calls)
	}
	if len(co.calls) != 1 {
		t.Fatalf("co: should still have 1 call, got %v", co.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	t.Parallel()
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	j := job.New(job.TypeRunApp, nil)
	w := id.NewWorkerID()

	r.EmitJobCreated(ctx, j)
	r.EmitJobStateChanged(ctx, j.ID, job.StateRunning)
	r.EmitJobResumed(ctx, j)
	r.EmitJobClaimed(ctx, j, 2)
	r.EmitClaimRejected(ctx, j, "dev-1")
	r.EmitNoJobAvailable(ctx, w, "dev-1", 0)
	r.EmitClaimExhausted(ctx, w, "dev-1", 256)
	r.EmitShutdown(ctx)

	expected := []string{
		"OnJobCreated", "OnJobStateChanged", "OnJobResumed", "OnJobClaimed",
		"OnClaimRejected", "OnNoJobAvailable", "OnClaimExhausted", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	r := ext.NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(&failingExt{})
	r.Register(all)

	r.EmitJobClaimed(context.Background(), job.New(job.TypeInstallApp, nil), 1)

	if len(all.calls) != 1 || all.calls[0] != "OnJobClaimed" {
		t.Fatalf("all: expected [OnJobClaimed] despite failing ext, got %v", all.calls)
	}
	out := buf.String()
	if !strings.Contains(out, "extension=failing") || !strings.Contains(out, "hook=OnJobClaimed") {
		t.Errorf("hook error not logged: %q", out)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()
	j := job.New(job.TypeRunApp, nil)

	// None of these should panic or error.
	r.EmitJobCreated(ctx, j)
	r.EmitJobStateChanged(ctx, j.ID, job.StateFinished)
	r.EmitJobResumed(ctx, j)
	r.EmitJobClaimed(ctx, j, 1)
	r.EmitClaimRejected(ctx, j, "dev-1")
	r.EmitNoJobAvailable(ctx, id.NewWorkerID(), "dev-1", 0)
	r.EmitClaimExhausted(ctx, id.NewWorkerID(), "dev-1", 1)
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	t.Parallel()
	r := ext.NewRegistry(slog.Default())

	var order []string
	r.Register(&orderedExt{name: "first", order: &order})
	r.Register(&orderedExt{name: "second", order: &order})

	r.EmitShutdown(context.Background())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

type orderedExt struct {
	name  string
	order *[]string
}

func (e *orderedExt) Name() string { return e.name }

func (e *orderedExt) OnShutdown(_ context.Context) error {
	*e.order = append(*e.order, e.name)
	return nil
}
