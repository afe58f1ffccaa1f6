// Package store defines the aggregate persistence interface. Each entity
// package (job, worker, device, account) defines its own store interface.
// The composite Store composes them all. Backends: Memory, Mongo, Postgres,
// Bun, Redis and NATS KV.
package store

import (
	"context"

	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/worker"
)

// Store is the aggregate persistence interface.
// A single backend implements every entity store.
type Store interface {
	job.Store
	worker.Store
	device.Store
	account.Store

	// Migrate creates or updates the schema, indexes or buckets.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}
