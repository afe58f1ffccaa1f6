package job

import (
	"context"

	"github.com/DiOS-Analysis/Backend/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// States filters by job state. Empty means all states.
	States []State
	// Type filters by job type. Empty means all types.
	Type Type
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// ClaimFilter is the candidate predicate of an atomic claim. A job is a
// candidate when its worker is unset or equal to WorkerID, its device is
// unset or equal to DeviceUDID (independently), its state is not terminal
// and its ID is not in Exclude.
type ClaimFilter struct {
	WorkerID   id.WorkerID
	DeviceUDID string
	Exclude    []id.JobID
}

// Matches evaluates the candidate predicate against j.
func (f ClaimFilter) Matches(j *Job) bool {
	if j.State.Terminal() {
		return false
	}
	if !j.WorkerID.IsNil() && !j.WorkerID.Equal(f.WorkerID) {
		return false
	}
	if j.DeviceUDID != "" && j.DeviceUDID != f.DeviceUDID {
		return false
	}
	for _, ex := range f.Exclude {
		if ex.Equal(j.ID) {
			return false
		}
	}
	return true
}

// ExcludeStrings returns the excluded IDs in string form, never nil.
func (f ClaimFilter) ExcludeStrings() []string {
	out := make([]string, 0, len(f.Exclude))
	for _, ex := range f.Exclude {
		out = append(out, ex.String())
	}
	return out
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns jobs matching opts, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// FindActiveJob returns the newest non-terminal job assigned to exactly
	// this worker and device, or ErrJobNotFound.
	FindActiveJob(ctx context.Context, workerID id.WorkerID, udid string) (*Job, error)

	// ClaimJob atomically selects the newest job matching f, assigns it to
	// f.WorkerID and f.DeviceUDID and returns the updated job. Two callers
	// never observe the same job from one underlying update. Returns
	// ErrJobNotFound when no job matches.
	ClaimJob(ctx context.Context, f ClaimFilter) (*Job, error)

	// ReleaseJob unconditionally clears the worker and device of a job.
	ReleaseJob(ctx context.Context, jobID id.JobID) error

	// UpdateJobState unconditionally sets the lifecycle state of a job.
	UpdateJobState(ctx context.Context, jobID id.JobID, state State) error
}
