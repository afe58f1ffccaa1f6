package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

const jobColumns = `id, type, state, job_info, worker_id, device_id, created_at, updated_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	info, err := jsonDoc(j.Info)
	if err != nil {
		return fmt.Errorf("backend/postgres: encode job info: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO dios_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID.String(), string(j.Type), string(j.State), info,
		j.WorkerID.String(), j.DeviceUDID, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return backend.ErrJobAlreadyExists
		}
		return fmt.Errorf("backend/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM dios_jobs WHERE id = $1`,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/postgres: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM dios_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if len(opts.States) > 0 {
		states := make([]string, len(opts.States))
		for i, st := range opts.States {
			states[i] = string(st)
		}
		query += fmt.Sprintf(" AND state = ANY($%d)", argIdx)
		args = append(args, states)
		argIdx++
	}
	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(opts.Type))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("backend/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// FindActiveJob returns the newest non-terminal job assigned to exactly
// this worker and device.
func (s *Store) FindActiveJob(ctx context.Context, workerID id.WorkerID, udid string) (*job.Job, error) {
	if workerID.IsNil() || udid == "" {
		return nil, backend.ErrJobNotFound
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM dios_jobs
		WHERE worker_id = $1 AND device_id = $2
		  AND state NOT IN ('finished', 'failed')
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		workerID.String(), udid,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/postgres: find active job: %w", err)
	}
	return j, nil
}

// ClaimJob assigns the newest candidate in one statement. The subquery
// locks the chosen row and skips rows locked by concurrent claimants.
func (s *Store) ClaimJob(ctx context.Context, f job.ClaimFilter) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dios_jobs
		SET worker_id = $1, device_id = $2, updated_at = NOW()
		WHERE id = (
			SELECT id FROM dios_jobs
			WHERE (worker_id = '' OR worker_id = $1)
			  AND (device_id = '' OR device_id = $2)
			  AND state NOT IN ('finished', 'failed')
			  AND NOT (id = ANY($3))
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		f.WorkerID.String(), f.DeviceUDID, f.ExcludeStrings(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrJobNotFound
		}
		return nil, fmt.Errorf("backend/postgres: claim job: %w", err)
	}
	return j, nil
}

// ReleaseJob clears the assignment of a job.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dios_jobs SET worker_id = '', device_id = '', updated_at = NOW()
		WHERE id = $1`,
		jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("backend/postgres: release job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return backend.ErrJobNotFound
	}
	return nil
}

// UpdateJobState sets the lifecycle state of a job.
func (s *Store) UpdateJobState(ctx context.Context, jobID id.JobID, state job.State) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dios_jobs SET state = $2, updated_at = NOW() WHERE id = $1`,
		jobID.String(), string(state),
	)
	if err != nil {
		return fmt.Errorf("backend/postgres: update job state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return backend.ErrJobNotFound
	}
	return nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		typeStr   string
		stateStr  string
		info      []byte
		workerStr string
	)
	err := row.Scan(
		&idStr, &typeStr, &stateStr, &info, &workerStr, &j.DeviceUDID,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Type = job.Type(typeStr)
	j.State = job.State(stateStr)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("backend/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if j.WorkerID, parseErr = id.ParseOptional(workerStr, id.PrefixWorker); parseErr != nil {
		return nil, fmt.Errorf("backend/postgres: parse worker id %q: %w", workerStr, parseErr)
	}

	j.Info = job.Info{}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &j.Info); err != nil {
			return nil, fmt.Errorf("backend/postgres: decode job info: %w", err)
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := []*job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("backend/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backend/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
