package bunstore

import (
	"context"
	"fmt"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/worker"
)

// CreateWorker persists a new worker.
func (s *Store) CreateWorker(ctx context.Context, w *worker.Worker) error {
	_, err := s.db.NewInsert().Model(toWorkerModel(w)).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return backend.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("backend/bun: create worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	m := new(workerModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", workerID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("backend/bun: get worker: %w", err)
	}
	return fromWorkerModel(m)
}

// ListWorkers returns workers matching opts, oldest first.
func (s *Store) ListWorkers(ctx context.Context, opts worker.ListOpts) ([]*worker.Worker, error) {
	var models []workerModel
	q := s.db.NewSelect().Model(&models)
	if opts.Name != "" {
		q = q.Where("name = ?", opts.Name)
	}
	if err := q.Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("backend/bun: list workers: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(models))
	for i := range models {
		w, err := fromWorkerModel(&models[i])
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}
