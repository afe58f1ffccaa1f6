package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// ErrRevisionConflict is returned when a read-modify-write on one entry
// keeps losing to concurrent writers.
var ErrRevisionConflict = errors.New("backend/natskv: revision conflict")

// storedJob is a decoded job record with the revision it was read at.
type storedJob struct {
	rec jobRecord
	rev uint64
}

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(toJobRecord(j))
	if err != nil {
		return fmt.Errorf("backend/natskv: encode job: %w", err)
	}
	if _, err := s.jobs.Create(ctx, j.ID.String(), data); err != nil {
		if isConflict(err) {
			return backend.ErrJobAlreadyExists
		}
		return fmt.Errorf("backend/natskv: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	sj, err := s.getJob(ctx, jobID.String())
	if err != nil {
		return nil, err
	}
	return sj.rec.toJob()
}

// ListJobs returns jobs matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	all, err := s.scanJobs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*job.Job, 0, len(all))
	for _, sj := range all {
		if len(opts.States) > 0 && !containsState(opts.States, job.State(sj.rec.State)) {
			continue
		}
		if opts.Type != "" && sj.rec.Type != string(opts.Type) {
			continue
		}
		j, convErr := sj.rec.toJob()
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, j)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*job.Job{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// FindActiveJob returns the newest non-terminal job assigned to exactly
// this worker and device.
func (s *Store) FindActiveJob(ctx context.Context, workerID id.WorkerID, udid string) (*job.Job, error) {
	if workerID.IsNil() || udid == "" {
		return nil, backend.ErrJobNotFound
	}

	all, err := s.scanJobs(ctx)
	if err != nil {
		return nil, err
	}
	for _, sj := range all {
		r := sj.rec
		if !job.State(r.State).Terminal() && r.WorkerID == workerID.String() && r.DeviceID == udid {
			return r.toJob()
		}
	}
	return nil, backend.ErrJobNotFound
}

// ClaimJob assigns the newest candidate with a revision-checked update.
// On a revision conflict only the contested entry is re-read; if it is
// still a candidate the update is retried, up to maxCASRetries times,
// otherwise the scan moves on to the next older job.
func (s *Store) ClaimJob(ctx context.Context, f job.ClaimFilter) (*job.Job, error) {
	excluded := make(map[string]struct{}, len(f.Exclude))
	for _, ex := range f.ExcludeStrings() {
		excluded[ex] = struct{}{}
	}

	all, err := s.scanJobs(ctx)
	if err != nil {
		return nil, err
	}

	for _, sj := range all {
		for try := 1; sj.rec.candidate(f, excluded); try++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("backend/natskv: claim job: %w", err)
			}

			rec := sj.rec
			rec.WorkerID = f.WorkerID.String()
			rec.DeviceID = f.DeviceUDID
			rec.UpdatedAt = time.Now().UTC()
			data, err := json.Marshal(rec)
			if err != nil {
				return nil, fmt.Errorf("backend/natskv: encode job: %w", err)
			}

			_, err = s.jobs.Update(ctx, rec.ID, data, sj.rev)
			if err == nil {
				return rec.toJob()
			}
			if !isConflict(err) {
				return nil, fmt.Errorf("backend/natskv: claim job: %w", err)
			}
			if try >= maxCASRetries {
				return nil, fmt.Errorf("backend/natskv: claim job %s: %w after %d attempts", rec.ID, ErrRevisionConflict, try)
			}
			s.logger.Debug("claim lost revision race",
				slog.String("job_id", rec.ID),
				slog.Int("attempt", try),
			)

			sj, err = s.getJob(ctx, rec.ID)
			if errors.Is(err, backend.ErrJobNotFound) {
				break
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return nil, backend.ErrJobNotFound
}

// ReleaseJob clears the assignment of a job.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID) error {
	return s.updateJob(ctx, jobID.String(), "release job", func(r *jobRecord) {
		r.WorkerID = ""
		r.DeviceID = ""
	})
}

// UpdateJobState sets the lifecycle state of a job.
func (s *Store) UpdateJobState(ctx context.Context, jobID id.JobID, state job.State) error {
	return s.updateJob(ctx, jobID.String(), "update job state", func(r *jobRecord) {
		r.State = string(state)
	})
}

// updateJob applies mutate with compare-and-swap, retrying on conflicts.
func (s *Store) updateJob(ctx context.Context, key, op string, mutate func(*jobRecord)) error {
	for i := 0; i < maxCASRetries; i++ {
		sj, err := s.getJob(ctx, key)
		if err != nil {
			return err
		}
		mutate(&sj.rec)
		sj.rec.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(sj.rec)
		if err != nil {
			return fmt.Errorf("backend/natskv: encode job: %w", err)
		}
		if _, err := s.jobs.Update(ctx, key, data, sj.rev); err != nil {
			if isConflict(err) {
				continue
			}
			return fmt.Errorf("backend/natskv: %s: %w", op, err)
		}
		return nil
	}
	return fmt.Errorf("backend/natskv: %s %s: %w after %d attempts", op, key, ErrRevisionConflict, maxCASRetries)
}

func (s *Store) getJob(ctx context.Context, key string) (storedJob, error) {
	entry, err := s.jobs.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return storedJob{}, backend.ErrJobNotFound
		}
		return storedJob{}, fmt.Errorf("backend/natskv: get job: %w", err)
	}
	return decodeJob(entry)
}

// scanJobs reads every job, newest first.
func (s *Store) scanJobs(ctx context.Context) ([]storedJob, error) {
	ks, err := keys(ctx, s.jobs)
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: list job keys: %w", err)
	}

	all := make([]storedJob, 0, len(ks))
	for _, k := range ks {
		entry, getErr := s.jobs.Get(ctx, k)
		if getErr != nil {
			if isNotFound(getErr) {
				continue
			}
			return nil, fmt.Errorf("backend/natskv: get job %s: %w", k, getErr)
		}
		sj, decErr := decodeJob(entry)
		if decErr != nil {
			return nil, decErr
		}
		all = append(all, sj)
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].rec, all[j].rec
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return all, nil
}

func decodeJob(entry jetstream.KeyValueEntry) (storedJob, error) {
	rec, err := decode[jobRecord](entry.Value())
	if err != nil {
		return storedJob{}, fmt.Errorf("backend/natskv: decode job %s: %w", entry.Key(), err)
	}
	return storedJob{rec: rec, rev: entry.Revision()}, nil
}

func containsState(states []job.State, st job.State) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}
