package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return backend.ErrJobAlreadyExists
		}
		return fmt.Errorf("backend/bun: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// ListJobs returns jobs matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)

	if len(opts.States) > 0 {
		states := make([]string, len(opts.States))
		for i, st := range opts.States {
			states[i] = string(st)
		}
		q = q.Where("state IN (?)", bun.In(states))
	}
	if opts.Type != "" {
		q = q.Where("type = ?", string(opts.Type))
	}

	q = q.Order("created_at DESC", "id DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("backend/bun: list jobs: %w", err)
	}
	return fromJobModels(models)
}

// FindActiveJob returns the newest non-terminal job assigned to exactly
// this worker and device.
func (s *Store) FindActiveJob(ctx context.Context, workerID id.WorkerID, udid string) (*job.Job, error) {
	if workerID.IsNil() || udid == "" {
		return nil, backend.ErrJobNotFound
	}

	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("worker_id = ?", workerID.String()).
		Where("device_id = ?", udid).
		Where("state NOT IN ('finished', 'failed')").
		Order("created_at DESC", "id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/bun: find active job: %w", err)
	}
	return fromJobModel(m)
}

// ClaimJob assigns the newest candidate using UPDATE over a SELECT FOR
// UPDATE SKIP LOCKED subquery via raw SQL.
func (s *Store) ClaimJob(ctx context.Context, f job.ClaimFilter) (*job.Job, error) {
	var models []jobModel
	_, err := s.db.NewRaw(`
		UPDATE dios_jobs
		SET worker_id = ?0, device_id = ?1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM dios_jobs
			WHERE (worker_id = '' OR worker_id = ?0)
			  AND (device_id = '' OR device_id = ?1)
			  AND state NOT IN ('finished', 'failed')
			  AND NOT (id = ANY(?2))
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		f.WorkerID.String(), f.DeviceUDID, pgdialect.Array(f.ExcludeStrings()),
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("backend/bun: claim job: %w", err)
	}
	if len(models) == 0 {
		return nil, backend.ErrJobNotFound
	}
	return fromJobModel(&models[0])
}

// ReleaseJob clears the assignment of a job.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewUpdate().
		TableExpr("dios_jobs").
		Set("worker_id = ''").
		Set("device_id = ''").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("backend/bun: release job: %w", err)
	}
	if rowsAffected(res) == 0 {
		return backend.ErrJobNotFound
	}
	return nil
}

// UpdateJobState sets the lifecycle state of a job.
func (s *Store) UpdateJobState(ctx context.Context, jobID id.JobID, state job.State) error {
	res, err := s.db.NewUpdate().
		TableExpr("dios_jobs").
		Set("state = ?", string(state)).
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("backend/bun: update job state: %w", err)
	}
	if rowsAffected(res) == 0 {
		return backend.ErrJobNotFound
	}
	return nil
}
