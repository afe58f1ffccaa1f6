// Package memory implements store.Store in process memory.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/store"
	"github.com/DiOS-Analysis/Backend/worker"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store. Every method
// returns copies so callers can mutate results without racing the store.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*job.Job
	workers  map[string]*worker.Worker
	devices  map[string]*device.Device
	accounts map[string]*account.Account
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*job.Job),
		workers:  make(map[string]*worker.Worker),
		devices:  make(map[string]*device.Device),
		accounts: make(map[string]*account.Account),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

func copyJob(j *job.Job) *job.Job {
	cp := *j
	cp.Info = j.Info.Clone()
	return &cp
}

// newestFirst orders jobs by creation time descending, then by ID so the
// order is total.
func newestFirst(jobs []*job.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return strings.Compare(jobs[i].ID.String(), jobs[k].ID.String()) > 0
	})
}

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return backend.ErrJobAlreadyExists
	}
	m.jobs[key] = copyJob(j)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, backend.ErrJobNotFound
	}
	return copyJob(j), nil
}

// ListJobs returns jobs matching opts, newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if len(opts.States) > 0 && !slices.Contains(opts.States, j.State) {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		result = append(result, copyJob(j))
	}
	newestFirst(result)

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*job.Job{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// FindActiveJob returns the newest non-terminal job assigned to exactly
// this worker and device.
func (m *Store) FindActiveJob(_ context.Context, workerID id.WorkerID, udid string) (*job.Job, error) {
	if workerID.IsNil() || udid == "" {
		return nil, backend.ErrJobNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []*job.Job
	for _, j := range m.jobs {
		if j.State.Terminal() || !j.AssignedTo(workerID, udid) {
			continue
		}
		found = append(found, j)
	}
	if len(found) == 0 {
		return nil, backend.ErrJobNotFound
	}
	newestFirst(found)
	return copyJob(found[0]), nil
}

// ClaimJob assigns the newest candidate under the store lock.
func (m *Store) ClaimJob(_ context.Context, f job.ClaimFilter) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if f.Matches(j) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, backend.ErrJobNotFound
	}
	newestFirst(candidates)

	j := candidates[0]
	j.WorkerID = f.WorkerID
	j.DeviceUDID = f.DeviceUDID
	j.UpdatedAt = time.Now().UTC()
	return copyJob(j), nil
}

// ReleaseJob clears the assignment of a job.
func (m *Store) ReleaseJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return backend.ErrJobNotFound
	}
	j.WorkerID = id.Nil
	j.DeviceUDID = ""
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateJobState sets the lifecycle state of a job.
func (m *Store) UpdateJobState(_ context.Context, jobID id.JobID, state job.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return backend.ErrJobNotFound
	}
	j.State = state
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Worker Store
// ──────────────────────────────────────────────────

// CreateWorker persists a new worker.
func (m *Store) CreateWorker(_ context.Context, w *worker.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if _, exists := m.workers[key]; exists {
		return backend.ErrWorkerAlreadyExists
	}
	cp := *w
	m.workers[key] = &cp
	return nil
}

// GetWorker retrieves a worker by ID.
func (m *Store) GetWorker(_ context.Context, workerID id.WorkerID) (*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return nil, backend.ErrWorkerNotFound
	}
	cp := *w
	return &cp, nil
}

// ListWorkers returns workers matching opts, oldest first.
func (m *Store) ListWorkers(_ context.Context, opts worker.ListOpts) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*worker.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		if opts.Name != "" && w.Name != opts.Name {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].ID.String() < result[k].ID.String()
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Device Store
// ──────────────────────────────────────────────────

func copyDevice(d *device.Device) *device.Device {
	cp := *d
	cp.AccountIDs = slices.Clone(d.AccountIDs)
	if d.Info != nil {
		cp.Info = make(map[string]any, len(d.Info))
		for k, v := range d.Info {
			cp.Info[k] = v
		}
	}
	return &cp
}

// SaveDevice inserts or replaces the device with the same udid.
func (m *Store) SaveDevice(_ context.Context, d *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyDevice(d)
	if prev, ok := m.devices[d.UDID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	cp.UpdatedAt = time.Now().UTC()
	m.devices[d.UDID] = cp
	return nil
}

// GetDevice retrieves a device by udid.
func (m *Store) GetDevice(_ context.Context, udid string) (*device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[udid]
	if !ok {
		return nil, backend.ErrDeviceNotFound
	}
	return copyDevice(d), nil
}

// ListDevices returns devices matching opts ordered by udid.
func (m *Store) ListDevices(_ context.Context, opts device.ListOpts) ([]*device.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		if opts.AccountID != "" && !slices.Contains(d.AccountIDs, opts.AccountID) {
			continue
		}
		result = append(result, copyDevice(d))
	}
	sort.Slice(result, func(i, k int) bool { return result[i].UDID < result[k].UDID })
	return result, nil
}

// ──────────────────────────────────────────────────
// Account Store
// ──────────────────────────────────────────────────

// SaveAccount inserts or replaces the account with the same identifier.
func (m *Store) SaveAccount(_ context.Context, a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	if prev, ok := m.accounts[a.UniqueIdentifier]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	cp.UpdatedAt = time.Now().UTC()
	m.accounts[a.UniqueIdentifier] = &cp
	return nil
}

// GetAccount retrieves an account by unique identifier.
func (m *Store) GetAccount(_ context.Context, uniqueIdentifier string) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[uniqueIdentifier]
	if !ok {
		return nil, backend.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAccounts retrieves accounts in the order given, skipping unknown ones.
func (m *Store) GetAccounts(_ context.Context, uniqueIdentifiers []string) ([]*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*account.Account, 0, len(uniqueIdentifiers))
	for _, uid := range uniqueIdentifiers {
		a, ok := m.accounts[uid]
		if !ok {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

// ListAccounts returns all accounts ordered by unique identifier.
func (m *Store) ListAccounts(_ context.Context) ([]*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*account.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].UniqueIdentifier < result[k].UniqueIdentifier
	})
	return result, nil
}
