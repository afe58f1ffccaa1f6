package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

// fakeEntry is a minimal jetstream.KeyValueEntry.
type fakeEntry struct {
	key   string
	value []byte
	rev   uint64
}

func (e fakeEntry) Bucket() string                  { return "jobs" }
func (e fakeEntry) Key() string                     { return e.key }
func (e fakeEntry) Value() []byte                   { return e.value }
func (e fakeEntry) Revision() uint64                { return e.rev }
func (e fakeEntry) Created() time.Time              { return time.Time{} }
func (e fakeEntry) Delta() uint64                   { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

// fakeKV keeps entries in memory. onConflict decides whether an Update
// fails its revision check, and may rewrite the entry as a rival writer.
type fakeKV struct {
	jetstream.KeyValue

	mu         sync.Mutex
	entries    map[string]fakeEntry
	updates    int
	onConflict func(kv *fakeKV, key string) bool
}

func (kv *fakeKV) Keys(context.Context, ...jetstream.WatchOpt) ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	out := make([]string, 0, len(kv.entries))
	for k := range kv.entries {
		out = append(out, k)
	}
	return out, nil
}

func (kv *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	e, ok := kv.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (kv *fakeKV) Update(_ context.Context, key string, value []byte, rev uint64) (uint64, error) {
	kv.mu.Lock()
	kv.updates++
	hook := kv.onConflict
	kv.mu.Unlock()
	if hook != nil && hook(kv, key) {
		return 0, jetstream.ErrKeyExists
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	e := kv.entries[key]
	if e.rev != rev {
		return 0, jetstream.ErrKeyExists
	}
	kv.entries[key] = fakeEntry{key: key, value: value, rev: rev + 1}
	return rev + 1, nil
}

// put writes a record directly, bumping its revision.
func (kv *fakeKV) put(t *testing.T, rec jobRecord) {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.entries[rec.ID] = fakeEntry{key: rec.ID, value: data, rev: kv.entries[rec.ID].rev + 1}
}

func newFakeStore(t *testing.T, jobs ...*job.Job) (*Store, *fakeKV) {
	t.Helper()
	kv := &fakeKV{entries: map[string]fakeEntry{}}
	for _, j := range jobs {
		kv.put(t, toJobRecord(j))
	}
	return &Store{jobs: kv, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, kv
}

func pendingJob(age time.Duration) *job.Job {
	j := job.New(job.TypeInstallApp, nil)
	j.CreatedAt = time.Now().UTC().Add(-age)
	return j
}

func TestClaimJob_ConflictMovesToNextCandidate(t *testing.T) {
	t.Parallel()
	newer, older := pendingJob(time.Minute), pendingJob(time.Hour)
	s, kv := newFakeStore(t, newer, older)
	rival := id.NewWorkerID()

	// A rival claims the newer job between our read and our update.
	var once sync.Once
	kv.onConflict = func(kv *fakeKV, key string) bool {
		if key != newer.ID.String() {
			return false
		}
		lost := false
		once.Do(func() {
			rec := toJobRecord(newer)
			rec.WorkerID, rec.DeviceID = rival.String(), "dev-rival"
			kv.put(t, rec)
			lost = true
		})
		return lost
	}

	got, err := s.ClaimJob(context.Background(), job.ClaimFilter{WorkerID: id.NewWorkerID(), DeviceUDID: "dev-1"})
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if !got.ID.Equal(older.ID) {
		t.Fatalf("claimed %s, want older job %s", got.ID, older.ID)
	}
	if kv.updates != 2 {
		t.Errorf("updates = %d, want 2 (no full rescan)", kv.updates)
	}
}

func TestClaimJob_ConflictRetriesStillCandidate(t *testing.T) {
	t.Parallel()
	j := pendingJob(time.Minute)
	s, kv := newFakeStore(t, j)

	// A concurrent state write bumps the revision once; the job stays open.
	var once sync.Once
	kv.onConflict = func(kv *fakeKV, _ string) bool {
		bumped := false
		once.Do(func() {
			kv.put(t, toJobRecord(j))
			bumped = true
		})
		return bumped
	}

	w := id.NewWorkerID()
	got, err := s.ClaimJob(context.Background(), job.ClaimFilter{WorkerID: w, DeviceUDID: "dev-1"})
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if !got.WorkerID.Equal(w) || got.DeviceUDID != "dev-1" {
		t.Errorf("assignment = (%s, %s)", got.WorkerID, got.DeviceUDID)
	}
}

func TestClaimJob_ConflictRetriesAreBounded(t *testing.T) {
	t.Parallel()
	s, kv := newFakeStore(t, pendingJob(time.Minute))
	kv.onConflict = func(*fakeKV, string) bool { return true }

	_, err := s.ClaimJob(context.Background(), job.ClaimFilter{WorkerID: id.NewWorkerID(), DeviceUDID: "dev-1"})
	if !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("err = %v, want ErrRevisionConflict", err)
	}
	if kv.updates != maxCASRetries {
		t.Errorf("updates = %d, want %d", kv.updates, maxCASRetries)
	}
}
