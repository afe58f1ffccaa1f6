package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/worker"
)

// CreateWorker persists a new worker.
func (s *Store) CreateWorker(ctx context.Context, w *worker.Worker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dios_workers (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`,
		w.ID.String(), w.Name, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return backend.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("backend/postgres: create worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM dios_workers WHERE id = $1`,
		workerID.String(),
	)
	w, err := scanWorker(row)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("backend/postgres: get worker: %w", err)
	}
	return w, nil
}

// ListWorkers returns workers matching opts, oldest first.
func (s *Store) ListWorkers(ctx context.Context, opts worker.ListOpts) ([]*worker.Worker, error) {
	query := `SELECT id, name, created_at, updated_at FROM dios_workers`
	args := []any{}
	if opts.Name != "" {
		query += ` WHERE name = $1`
		args = append(args, opts.Name)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("backend/postgres: list workers: %w", err)
	}
	defer rows.Close()

	workers := []*worker.Worker{}
	for rows.Next() {
		w, scanErr := scanWorker(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("backend/postgres: scan worker row: %w", scanErr)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backend/postgres: iterate worker rows: %w", err)
	}
	return workers, nil
}

func scanWorker(row pgx.Row) (*worker.Worker, error) {
	var (
		w     worker.Worker
		idStr string
	)
	if err := row.Scan(&idStr, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseWorkerID(idStr)
	if err != nil {
		return nil, fmt.Errorf("backend/postgres: parse worker id %q: %w", idStr, err)
	}
	w.ID = parsed
	return &w, nil
}
