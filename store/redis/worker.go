package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/worker"
)

// CreateWorker persists a new worker.
func (s *Store) CreateWorker(ctx context.Context, w *worker.Worker) error {
	wID := w.ID.String()
	key := workerKey(wID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("backend/redis: create worker check exists: %w", err)
	}
	if exists > 0 {
		return backend.ErrWorkerAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"id", wID,
		"name", w.Name,
		"created_at", formatTime(w.CreatedAt),
		"updated_at", formatTime(w.UpdatedAt),
	)
	pipe.ZAdd(ctx, workerIDsKey, goredis.Z{Score: score(w.CreatedAt), Member: wID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("backend/redis: create worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	vals, err := s.client.HGetAll(ctx, workerKey(workerID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: get worker: %w", err)
	}
	if len(vals) == 0 {
		return nil, backend.ErrWorkerNotFound
	}
	return mapToWorker(vals)
}

// ListWorkers returns workers matching opts, oldest first.
func (s *Store) ListWorkers(ctx context.Context, opts worker.ListOpts) ([]*worker.Worker, error) {
	ids, err := s.client.ZRange(ctx, workerIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: list workers: %w", err)
	}
	keys := make([]string, len(ids))
	for i, wID := range ids {
		keys[i] = workerKey(wID)
	}
	hashes, err := s.hgetAll(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("backend/redis: list workers: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(hashes))
	for _, h := range hashes {
		if len(h) == 0 {
			continue
		}
		if opts.Name != "" && h["name"] != opts.Name {
			continue
		}
		w, convErr := mapToWorker(h)
		if convErr != nil {
			return nil, convErr
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func mapToWorker(m map[string]string) (*worker.Worker, error) {
	wID, err := id.ParseWorkerID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("backend/redis: parse worker id: %w", err)
	}
	return &worker.Worker{
		Entity: backend.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		ID:   wID,
		Name: m["name"],
	}, nil
}

