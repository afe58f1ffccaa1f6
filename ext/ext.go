package ext

import (
	"context"

	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job is persisted.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobStateChanged is called after a job's lifecycle state is updated.
type JobStateChanged interface {
	OnJobStateChanged(ctx context.Context, jobID id.JobID, state job.State) error
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// JobResumed is called when a claim returns a job the caller already owns.
type JobResumed interface {
	OnJobResumed(ctx context.Context, j *job.Job) error
}

// JobClaimed is called when a job is claimed and found compatible.
// attempts counts atomic claims issued, including rejected ones.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *job.Job, attempts int) error
}

// ClaimRejected is called after an incompatible job was rolled back.
type ClaimRejected interface {
	OnClaimRejected(ctx context.Context, j *job.Job, udid string) error
}

// NoJobAvailable is called when no candidate job remains.
type NoJobAvailable interface {
	OnNoJobAvailable(ctx context.Context, workerID id.WorkerID, udid string, attempts int) error
}

// ClaimExhausted is called when a claim stops at the attempt cap.
type ClaimExhausted interface {
	OnClaimExhausted(ctx context.Context, workerID id.WorkerID, udid string, attempts int) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
