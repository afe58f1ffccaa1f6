package ext

import (
	"context"
	"log/slog"

	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type jobCreatedEntry struct {
	name string
	hook JobCreated
}

type jobStateChangedEntry struct {
	name string
	hook JobStateChanged
}

type jobResumedEntry struct {
	name string
	hook JobResumed
}

type jobClaimedEntry struct {
	name string
	hook JobClaimed
}

type claimRejectedEntry struct {
	name string
	hook ClaimRejected
}

type noJobAvailableEntry struct {
	name string
	hook NoJobAvailable
}

type claimExhaustedEntry struct {
	name string
	hook ClaimExhausted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register is not safe for concurrent use; register everything before the
// first Emit. Emit methods may be called concurrently.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobCreated      []jobCreatedEntry
	jobStateChanged []jobStateChangedEntry
	jobResumed      []jobResumedEntry
	jobClaimed      []jobClaimedEntry
	claimRejected   []claimRejectedEntry
	noJobAvailable  []noJobAvailableEntry
	claimExhausted  []claimExhaustedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobCreated); ok {
		r.jobCreated = append(r.jobCreated, jobCreatedEntry{name, h})
	}
	if h, ok := e.(JobStateChanged); ok {
		r.jobStateChanged = append(r.jobStateChanged, jobStateChangedEntry{name, h})
	}
	if h, ok := e.(JobResumed); ok {
		r.jobResumed = append(r.jobResumed, jobResumedEntry{name, h})
	}
	if h, ok := e.(JobClaimed); ok {
		r.jobClaimed = append(r.jobClaimed, jobClaimedEntry{name, h})
	}
	if h, ok := e.(ClaimRejected); ok {
		r.claimRejected = append(r.claimRejected, claimRejectedEntry{name, h})
	}
	if h, ok := e.(NoJobAvailable); ok {
		r.noJobAvailable = append(r.noJobAvailable, noJobAvailableEntry{name, h})
	}
	if h, ok := e.(ClaimExhausted); ok {
		r.claimExhausted = append(r.claimExhausted, claimExhaustedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobCreated notifies all extensions that implement JobCreated.
func (r *Registry) EmitJobCreated(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCreated {
		if err := e.hook.OnJobCreated(ctx, j); err != nil {
			r.logHookError("OnJobCreated", e.name, err)
		}
	}
}

// EmitJobStateChanged notifies all extensions that implement JobStateChanged.
func (r *Registry) EmitJobStateChanged(ctx context.Context, jobID id.JobID, state job.State) {
	for _, e := range r.jobStateChanged {
		if err := e.hook.OnJobStateChanged(ctx, jobID, state); err != nil {
			r.logHookError("OnJobStateChanged", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Claim event emitters
// ──────────────────────────────────────────────────

// EmitJobResumed notifies all extensions that implement JobResumed.
func (r *Registry) EmitJobResumed(ctx context.Context, j *job.Job) {
	for _, e := range r.jobResumed {
		if err := e.hook.OnJobResumed(ctx, j); err != nil {
			r.logHookError("OnJobResumed", e.name, err)
		}
	}
}

// EmitJobClaimed notifies all extensions that implement JobClaimed.
func (r *Registry) EmitJobClaimed(ctx context.Context, j *job.Job, attempts int) {
	for _, e := range r.jobClaimed {
		if err := e.hook.OnJobClaimed(ctx, j, attempts); err != nil {
			r.logHookError("OnJobClaimed", e.name, err)
		}
	}
}

// EmitClaimRejected notifies all extensions that implement ClaimRejected.
func (r *Registry) EmitClaimRejected(ctx context.Context, j *job.Job, udid string) {
	for _, e := range r.claimRejected {
		if err := e.hook.OnClaimRejected(ctx, j, udid); err != nil {
			r.logHookError("OnClaimRejected", e.name, err)
		}
	}
}

// EmitNoJobAvailable notifies all extensions that implement NoJobAvailable.
func (r *Registry) EmitNoJobAvailable(ctx context.Context, workerID id.WorkerID, udid string, attempts int) {
	for _, e := range r.noJobAvailable {
		if err := e.hook.OnNoJobAvailable(ctx, workerID, udid, attempts); err != nil {
			r.logHookError("OnNoJobAvailable", e.name, err)
		}
	}
}

// EmitClaimExhausted notifies all extensions that implement ClaimExhausted.
func (r *Registry) EmitClaimExhausted(ctx context.Context, workerID id.WorkerID, udid string, attempts int) {
	for _, e := range r.claimExhausted {
		if err := e.hook.OnClaimExhausted(ctx, workerID, udid, attempts); err != nil {
			r.logHookError("OnClaimExhausted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated to the claim path.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
