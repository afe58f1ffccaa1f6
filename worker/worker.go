// Package worker defines the execution agent entity and its store.
//
// Workers are registered externally and are immutable as far as the claim
// protocol is concerned: the engine only resolves them by ID.
package worker

import (
	"context"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/id"
)

// Worker is an execution agent that polls for jobs on behalf of devices.
type Worker struct {
	backend.Entity

	ID   id.WorkerID `json:"id"`
	Name string      `json:"name"`
}

// New returns a worker with a fresh ID.
func New(name string) *Worker {
	return &Worker{
		Entity: backend.NewEntity(),
		ID:     id.NewWorkerID(),
		Name:   name,
	}
}

// ListOpts controls filtering for worker list queries.
type ListOpts struct {
	// Name filters by exact worker name. Empty means all workers.
	Name string
}

// Store defines the persistence contract for workers.
type Store interface {
	// CreateWorker persists a new worker.
	CreateWorker(ctx context.Context, w *Worker) error

	// GetWorker retrieves a worker by ID.
	GetWorker(ctx context.Context, workerID id.WorkerID) (*Worker, error)

	// ListWorkers returns workers matching opts, oldest first.
	ListWorkers(ctx context.Context, opts ListOpts) ([]*Worker, error)
}
