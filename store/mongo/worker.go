package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/worker"
)

// CreateWorker persists a new worker.
func (s *Store) CreateWorker(ctx context.Context, w *worker.Worker) error {
	_, err := s.db.Collection(colWorkers).InsertOne(ctx, toWorkerModel(w))
	if err != nil {
		if isDuplicateKey(err) {
			return backend.ErrWorkerAlreadyExists
		}
		return fmt.Errorf("backend/mongo: create worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *Store) GetWorker(ctx context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	var m workerModel
	err := s.db.Collection(colWorkers).FindOne(ctx, bson.M{"_id": workerID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, backend.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("backend/mongo: get worker: %w", err)
	}
	return fromWorkerModel(&m)
}

// ListWorkers returns workers matching opts, oldest first.
func (s *Store) ListWorkers(ctx context.Context, opts worker.ListOpts) ([]*worker.Worker, error) {
	filter := bson.M{}
	if opts.Name != "" {
		filter["name"] = opts.Name
	}

	cursor, err := s.db.Collection(colWorkers).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: list workers: %w", err)
	}
	defer cursor.Close(ctx)

	var models []workerModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("backend/mongo: decode workers: %w", err)
	}

	workers := make([]*worker.Worker, 0, len(models))
	for i := range models {
		w, convErr := fromWorkerModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		workers = append(workers, w)
	}
	return workers, nil
}
