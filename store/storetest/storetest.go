// Package storetest holds a conformance suite run against every
// store.Store backend. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/store"
	"github.com/DiOS-Analysis/Backend/worker"
)

// Factory returns an empty, migrated store. It is called once per subtest.
// Backends sharing a server between subtests must clear it here.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite. Subtests run sequentially since persistent
// backends usually share one server.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Ping", testPing},
		{"JobCreateAndGet", testJobCreateAndGet},
		{"JobCreateDuplicate", testJobCreateDuplicate},
		{"JobGetMissing", testJobGetMissing},
		{"ListJobs", testListJobs},
		{"UpdateJobState", testUpdateJobState},
		{"ClaimNewestFirst", testClaimNewestFirst},
		{"ClaimSkipsTerminal", testClaimSkipsTerminal},
		{"ClaimHonoursExclude", testClaimHonoursExclude},
		{"ClaimAssignmentRules", testClaimAssignmentRules},
		{"ClaimEmpty", testClaimEmpty},
		{"ReleaseJob", testReleaseJob},
		{"FindActiveJob", testFindActiveJob},
		{"ConcurrentClaims", testConcurrentClaims},
		{"Workers", testWorkers},
		{"Devices", testDevices},
		{"Accounts", testAccounts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

// base is far enough in the past that stores stamping UpdatedAt on write
// never collide with creation times.
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewJob builds a pending job created at base plus age seconds.
func NewJob(t job.Type, info job.Info, age int) *job.Job {
	j := job.New(t, info)
	j.CreatedAt = base.Add(time.Duration(age) * time.Second)
	j.UpdatedAt = j.CreatedAt
	return j
}

func mustCreate(t *testing.T, s store.Store, jobs ...*job.Job) {
	t.Helper()
	for _, j := range jobs {
		if err := s.CreateJob(context.Background(), j); err != nil {
			t.Fatalf("CreateJob(%s): %v", j.ID, err)
		}
	}
}

func mustGet(t *testing.T, s store.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", jobID, err)
	}
	return j
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testJobCreateAndGet(t *testing.T, s store.Store) {
	j := NewJob(job.TypeRunApp, job.Info{job.InfoAccountID: "A1", "bundleId": "com.example"}, 0)
	mustCreate(t, s, j)

	got := mustGet(t, s, j.ID)
	if !got.ID.Equal(j.ID) {
		t.Errorf("ID = %s, want %s", got.ID, j.ID)
	}
	if got.Type != job.TypeRunApp {
		t.Errorf("Type = %q, want %q", got.Type, job.TypeRunApp)
	}
	if got.State != job.StatePending {
		t.Errorf("State = %q, want %q", got.State, job.StatePending)
	}
	if v, _ := got.Info.Lookup(job.InfoAccountID); v != "A1" {
		t.Errorf("Info[accountId] = %q, want A1", v)
	}
	if got.Assigned() {
		t.Errorf("new job is assigned to %q/%q", got.WorkerID, got.DeviceUDID)
	}
	if !got.CreatedAt.Equal(j.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, j.CreatedAt)
	}
}

func testJobCreateDuplicate(t *testing.T, s store.Store) {
	j := NewJob(job.TypeInstallApp, nil, 0)
	mustCreate(t, s, j)

	err := s.CreateJob(context.Background(), j)
	if !errors.Is(err, backend.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob: got %v, want ErrJobAlreadyExists", err)
	}
}

func testJobGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	missing := id.NewJobID()

	if _, err := s.GetJob(ctx, missing); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("GetJob: got %v, want ErrJobNotFound", err)
	}
	if err := s.ReleaseJob(ctx, missing); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("ReleaseJob: got %v, want ErrJobNotFound", err)
	}
	if err := s.UpdateJobState(ctx, missing, job.StateRunning); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("UpdateJobState: got %v, want ErrJobNotFound", err)
	}
}

func testListJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := NewJob(job.TypeRunApp, nil, 0)
	mid := NewJob(job.TypeInstallApp, nil, 10)
	newest := NewJob(job.TypeRunApp, nil, 20)
	mustCreate(t, s, old, mid, newest)
	if err := s.UpdateJobState(ctx, mid.ID, job.StateFinished); err != nil {
		t.Fatalf("UpdateJobState: %v", err)
	}

	tests := []struct {
		name string
		opts job.ListOpts
		want []*job.Job
	}{
		{"all newest first", job.ListOpts{}, []*job.Job{newest, mid, old}},
		{"by state", job.ListOpts{States: []job.State{job.StatePending}}, []*job.Job{newest, old}},
		{"by type", job.ListOpts{Type: job.TypeInstallApp}, []*job.Job{mid}},
		{"limit", job.ListOpts{Limit: 1}, []*job.Job{newest}},
		{"offset", job.ListOpts{Offset: 1, Limit: 1}, []*job.Job{mid}},
		{"offset past end", job.ListOpts{Offset: 5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListJobs returned %d jobs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID.String() != tt.want[i].ID.String() {
					t.Errorf("jobs[%d] = %s, want %s", i, got[i].ID, tt.want[i].ID)
				}
			}
		})
	}
}

func testUpdateJobState(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeRunApp, nil, 0)
	mustCreate(t, s, j)

	for _, st := range []job.State{job.StateRunning, job.StateFailed, job.StatePending} {
		if err := s.UpdateJobState(ctx, j.ID, st); err != nil {
			t.Fatalf("UpdateJobState(%s): %v", st, err)
		}
		if got := mustGet(t, s, j.ID).State; got != st {
			t.Errorf("State = %q, want %q", got, st)
		}
	}
}

func testClaimNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	older := NewJob(job.TypeRunApp, nil, 0)
	newer := NewJob(job.TypeRunApp, nil, 60)
	mustCreate(t, s, older, newer)

	w := id.NewWorkerID()
	got, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1"})
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if !got.ID.Equal(newer.ID) {
		t.Fatalf("claimed %s, want newest %s", got.ID, newer.ID)
	}
	if !got.AssignedTo(w, "dev-1") {
		t.Errorf("returned job assigned to %q/%q", got.WorkerID, got.DeviceUDID)
	}
	if got.State != job.StatePending {
		t.Errorf("claim changed state to %q", got.State)
	}

	stored := mustGet(t, s, newer.ID)
	if !stored.AssignedTo(w, "dev-1") {
		t.Errorf("stored job assigned to %q/%q", stored.WorkerID, stored.DeviceUDID)
	}
	if mustGet(t, s, older.ID).Assigned() {
		t.Error("older job was assigned too")
	}
}

func testClaimSkipsTerminal(t *testing.T, s store.Store) {
	ctx := context.Background()
	finished := NewJob(job.TypeRunApp, nil, 30)
	failed := NewJob(job.TypeRunApp, nil, 20)
	running := NewJob(job.TypeRunApp, nil, 10)
	mustCreate(t, s, finished, failed, running)
	if err := s.UpdateJobState(ctx, finished.ID, job.StateFinished); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJobState(ctx, failed.ID, job.StateFailed); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJobState(ctx, running.ID, job.StateRunning); err != nil {
		t.Fatal(err)
	}

	got, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: id.NewWorkerID(), DeviceUDID: "dev-1"})
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if !got.ID.Equal(running.ID) {
		t.Fatalf("claimed %s (%s), want running job %s", got.ID, got.State, running.ID)
	}
}

func testClaimHonoursExclude(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewJob(job.TypeRunApp, nil, 0)
	b := NewJob(job.TypeRunApp, nil, 10)
	mustCreate(t, s, a, b)

	w := id.NewWorkerID()
	got, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1", Exclude: []id.JobID{b.ID}})
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if !got.ID.Equal(a.ID) {
		t.Fatalf("claimed %s, want %s", got.ID, a.ID)
	}

	_, err = s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1", Exclude: []id.JobID{a.ID, b.ID}})
	if !errors.Is(err, backend.ErrJobNotFound) {
		t.Fatalf("ClaimJob with all excluded: got %v, want ErrJobNotFound", err)
	}
}

func testClaimAssignmentRules(t *testing.T, s store.Store) {
	ctx := context.Background()
	w1, w2 := id.NewWorkerID(), id.NewWorkerID()

	// Claimed by w1 on dev-1, newest so it would win if eligible.
	taken := NewJob(job.TypeRunApp, nil, 40)
	// Assigned to w1 on another device.
	otherDevice := NewJob(job.TypeRunApp, nil, 30)
	mustCreate(t, s, taken, otherDevice)

	if _, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w1, DeviceUDID: "dev-1"}); err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	if got, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w1, DeviceUDID: "dev-2", Exclude: []id.JobID{taken.ID}}); err != nil || !got.ID.Equal(otherDevice.ID) {
		t.Fatalf("seed claim 2: got %v, %v", got, err)
	}

	// w2 sees neither of w1's jobs.
	_, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w2, DeviceUDID: "dev-1"})
	if !errors.Is(err, backend.ErrJobNotFound) {
		t.Fatalf("foreign worker claim: got %v, want ErrJobNotFound", err)
	}

	// w1 on dev-1 may re-claim its own job but not the dev-2 one.
	got, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w1, DeviceUDID: "dev-1"})
	if err != nil {
		t.Fatalf("own claim: %v", err)
	}
	if !got.ID.Equal(taken.ID) {
		t.Fatalf("own claim returned %s, want %s", got.ID, taken.ID)
	}
	_, err = s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w1, DeviceUDID: "dev-1", Exclude: []id.JobID{taken.ID}})
	if !errors.Is(err, backend.ErrJobNotFound) {
		t.Fatalf("claim of other device's job: got %v, want ErrJobNotFound", err)
	}
}

func testClaimEmpty(t *testing.T, s store.Store) {
	_, err := s.ClaimJob(context.Background(), job.ClaimFilter{WorkerID: id.NewWorkerID(), DeviceUDID: "dev-1"})
	if !errors.Is(err, backend.ErrJobNotFound) {
		t.Fatalf("ClaimJob on empty store: got %v, want ErrJobNotFound", err)
	}
}

func testReleaseJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob(job.TypeRunApp, nil, 0)
	mustCreate(t, s, j)

	w := id.NewWorkerID()
	if _, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1"}); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if err := s.ReleaseJob(ctx, j.ID); err != nil {
		t.Fatalf("ReleaseJob: %v", err)
	}

	got := mustGet(t, s, j.ID)
	if got.Assigned() {
		t.Fatalf("released job still assigned to %q/%q", got.WorkerID, got.DeviceUDID)
	}

	// A release makes the job claimable by anyone again.
	other, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: id.NewWorkerID(), DeviceUDID: "dev-2"})
	if err != nil {
		t.Fatalf("ClaimJob after release: %v", err)
	}
	if !other.ID.Equal(j.ID) {
		t.Fatalf("claimed %s, want %s", other.ID, j.ID)
	}
}

func testFindActiveJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := id.NewWorkerID()

	if _, err := s.FindActiveJob(ctx, w, "dev-1"); !errors.Is(err, backend.ErrJobNotFound) {
		t.Fatalf("FindActiveJob on empty store: got %v, want ErrJobNotFound", err)
	}

	j := NewJob(job.TypeRunApp, nil, 0)
	other := NewJob(job.TypeRunApp, nil, 10)
	mustCreate(t, s, j, other)

	// An empty pair never matches unassigned jobs.
	if _, err := s.FindActiveJob(ctx, id.Nil, ""); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("empty pair: got %v, want ErrJobNotFound", err)
	}

	if _, err := s.ClaimJob(ctx, job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1", Exclude: []id.JobID{other.ID}}); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}

	got, err := s.FindActiveJob(ctx, w, "dev-1")
	if err != nil {
		t.Fatalf("FindActiveJob: %v", err)
	}
	if !got.ID.Equal(j.ID) {
		t.Fatalf("FindActiveJob = %s, want %s", got.ID, j.ID)
	}

	// Exact pair only.
	if _, err := s.FindActiveJob(ctx, w, "dev-2"); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("other device: got %v, want ErrJobNotFound", err)
	}
	if _, err := s.FindActiveJob(ctx, id.NewWorkerID(), "dev-1"); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("other worker: got %v, want ErrJobNotFound", err)
	}

	// Terminal jobs are not resumable.
	if err := s.UpdateJobState(ctx, j.ID, job.StateFinished); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindActiveJob(ctx, w, "dev-1"); !errors.Is(err, backend.ErrJobNotFound) {
		t.Errorf("finished job: got %v, want ErrJobNotFound", err)
	}

	// Reopening a still-assigned job makes it resumable again.
	if err := s.UpdateJobState(ctx, j.ID, job.StatePending); err != nil {
		t.Fatal(err)
	}
	if got, err := s.FindActiveJob(ctx, w, "dev-1"); err != nil || !got.ID.Equal(j.ID) {
		t.Errorf("reopened job: got %v, %v, want %s", got, err, j.ID)
	}
}

func testConcurrentClaims(t *testing.T, s store.Store) {
	const (
		jobs    = 8
		callers = 16
	)
	ctx := context.Background()
	for i := 0; i < jobs; i++ {
		mustCreate(t, s, NewJob(job.TypeRunApp, nil, i))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < callers; i++ {
		w := id.NewWorkerID()
		udid := fmt.Sprintf("dev-%d", i)
		g.Go(func() error {
			j, err := s.ClaimJob(gctx, job.ClaimFilter{WorkerID: w, DeviceUDID: udid})
			if errors.Is(err, backend.ErrJobNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := claimed[j.ID.String()]; dup {
				return fmt.Errorf("job %s claimed by both %s and %s", j.ID, prev, udid)
			}
			claimed[j.ID.String()] = udid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
}

func testWorkers(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := worker.New("alpha")
	b := worker.New("beta")
	for _, w := range []*worker.Worker{a, b} {
		if err := s.CreateWorker(ctx, w); err != nil {
			t.Fatalf("CreateWorker: %v", err)
		}
	}
	if err := s.CreateWorker(ctx, a); !errors.Is(err, backend.ErrWorkerAlreadyExists) {
		t.Errorf("duplicate CreateWorker: got %v, want ErrWorkerAlreadyExists", err)
	}

	got, err := s.GetWorker(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.Name != "alpha" {
		t.Errorf("Name = %q, want alpha", got.Name)
	}
	if _, err := s.GetWorker(ctx, id.NewWorkerID()); !errors.Is(err, backend.ErrWorkerNotFound) {
		t.Errorf("GetWorker missing: got %v, want ErrWorkerNotFound", err)
	}

	all, err := s.ListWorkers(ctx, worker.ListOpts{})
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListWorkers returned %d, want 2", len(all))
	}
	named, err := s.ListWorkers(ctx, worker.ListOpts{Name: "beta"})
	if err != nil {
		t.Fatalf("ListWorkers by name: %v", err)
	}
	if len(named) != 1 || !named[0].ID.Equal(b.ID) {
		t.Errorf("ListWorkers(beta) = %v, want [%s]", named, b.ID)
	}
}

func testDevices(t *testing.T, s store.Store) {
	ctx := context.Background()
	d := &device.Device{
		Entity:     backend.NewEntity(),
		UDID:       "dev-b",
		Info:       map[string]any{"model": "iPhone12,1"},
		AccountIDs: []string{"A1"},
	}
	if err := s.SaveDevice(ctx, d); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}
	if err := s.SaveDevice(ctx, &device.Device{Entity: backend.NewEntity(), UDID: "dev-a", AccountIDs: []string{}}); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}

	// Upsert replaces the account list.
	d.AccountIDs = []string{"A1", "A2"}
	if err := s.SaveDevice(ctx, d); err != nil {
		t.Fatalf("SaveDevice upsert: %v", err)
	}

	got, err := s.GetDevice(ctx, "dev-b")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if len(got.AccountIDs) != 2 || got.AccountIDs[1] != "A2" {
		t.Errorf("AccountIDs = %v, want [A1 A2]", got.AccountIDs)
	}
	if got.Info["model"] != "iPhone12,1" {
		t.Errorf("Info[model] = %v", got.Info["model"])
	}
	if _, err := s.GetDevice(ctx, "missing"); !errors.Is(err, backend.ErrDeviceNotFound) {
		t.Errorf("GetDevice missing: got %v, want ErrDeviceNotFound", err)
	}

	all, err := s.ListDevices(ctx, device.ListOpts{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(all) != 2 || all[0].UDID != "dev-a" || all[1].UDID != "dev-b" {
		t.Errorf("ListDevices order wrong: %v", all)
	}
	bound, err := s.ListDevices(ctx, device.ListOpts{AccountID: "A2"})
	if err != nil {
		t.Fatalf("ListDevices by account: %v", err)
	}
	if len(bound) != 1 || bound[0].UDID != "dev-b" {
		t.Errorf("ListDevices(A2) = %v, want [dev-b]", bound)
	}
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	accounts := []*account.Account{
		{Entity: backend.NewEntity(), UniqueIdentifier: "A2", AppleID: "two@example.com", StoreCountry: "DE"},
		{Entity: backend.NewEntity(), UniqueIdentifier: "A1", AppleID: "one@example.com", StoreCountry: "US"},
	}
	for _, a := range accounts {
		if err := s.SaveAccount(ctx, a); err != nil {
			t.Fatalf("SaveAccount: %v", err)
		}
	}

	accounts[0].StoreCountry = "FR"
	if err := s.SaveAccount(ctx, accounts[0]); err != nil {
		t.Fatalf("SaveAccount upsert: %v", err)
	}

	got, err := s.GetAccount(ctx, "A2")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.StoreCountry != "FR" {
		t.Errorf("StoreCountry = %q, want FR", got.StoreCountry)
	}
	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, backend.ErrAccountNotFound) {
		t.Errorf("GetAccount missing: got %v, want ErrAccountNotFound", err)
	}

	batch, err := s.GetAccounts(ctx, []string{"A1", "missing", "A2"})
	if err != nil {
		t.Fatalf("GetAccounts: %v", err)
	}
	if len(batch) != 2 || batch[0].UniqueIdentifier != "A1" || batch[1].UniqueIdentifier != "A2" {
		t.Errorf("GetAccounts = %v, want [A1 A2]", batch)
	}

	empty, err := s.GetAccounts(ctx, nil)
	if err != nil {
		t.Fatalf("GetAccounts(nil): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("GetAccounts(nil) returned %d accounts", len(empty))
	}

	all, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(all) != 2 || all[0].UniqueIdentifier != "A1" {
		t.Errorf("ListAccounts = %v, want A1 first", all)
	}
}
