package natskv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/worker"
)

// CreateWorker persists a new worker.
func (s *Store) CreateWorker(ctx context.Context, w *worker.Worker) error {
	data, err := json.Marshal(workerRecord{
		ID:        w.ID.String(),
		Name:      w.Name,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("backend/natskv: encode worker: %w", err)
	}
	if _, err := s.workers.Create(ctx, w.ID.String(), data); err != nil {
		if isConflict(err) {
			return backend.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("backend/natskv: create worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	if workerID.IsNil() {
		return nil, backend.ErrWorkerNotFound
	}
	entry, err := s.workers.Get(ctx, workerID.String())
	if err != nil {
		if isNotFound(err) {
			return nil, backend.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("backend/natskv: get worker: %w", err)
	}
	rec, err := decode[workerRecord](entry.Value())
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: decode worker: %w", err)
	}
	return rec.toWorker()
}

// ListWorkers returns workers matching opts, oldest first.
func (s *Store) ListWorkers(ctx context.Context, opts worker.ListOpts) ([]*worker.Worker, error) {
	ks, err := keys(ctx, s.workers)
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: list worker keys: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(ks))
	for _, k := range ks {
		entry, getErr := s.workers.Get(ctx, k)
		if getErr != nil {
			if isNotFound(getErr) {
				continue
			}
			return nil, fmt.Errorf("backend/natskv: get worker %s: %w", k, getErr)
		}
		rec, decErr := decode[workerRecord](entry.Value())
		if decErr != nil {
			return nil, fmt.Errorf("backend/natskv: decode worker %s: %w", k, decErr)
		}
		if opts.Name != "" && rec.Name != opts.Name {
			continue
		}
		w, convErr := rec.toWorker()
		if convErr != nil {
			return nil, convErr
		}
		workers = append(workers, w)
	}

	sort.Slice(workers, func(i, j int) bool {
		if !workers[i].CreatedAt.Equal(workers[j].CreatedAt) {
			return workers[i].CreatedAt.Before(workers[j].CreatedAt)
		}
		return workers[i].ID.String() < workers[j].ID.String()
	})
	return workers, nil
}
