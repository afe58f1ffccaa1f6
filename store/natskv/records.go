package natskv

import (
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/worker"
)

type jobRecord struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	State     string         `json:"state"`
	JobInfo   map[string]any `json:"job_info"`
	WorkerID  string         `json:"worker_id"`
	DeviceID  string         `json:"device_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toJobRecord(j *job.Job) jobRecord {
	info := map[string]any(j.Info)
	if info == nil {
		info = map[string]any{}
	}
	return jobRecord{
		ID:        j.ID.String(),
		Type:      string(j.Type),
		State:     string(j.State),
		JobInfo:   info,
		WorkerID:  j.WorkerID.String(),
		DeviceID:  j.DeviceUDID,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func (r jobRecord) toJob() (*job.Job, error) {
	jID, err := id.ParseJobID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: parse job id %q: %w", r.ID, err)
	}
	wID, err := id.ParseOptional(r.WorkerID, id.PrefixWorker)
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: parse worker id %q: %w", r.WorkerID, err)
	}
	info := job.Info(r.JobInfo)
	if info == nil {
		info = job.Info{}
	}
	return &job.Job{
		Entity:     backend.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:         jID,
		Type:       job.Type(r.Type),
		State:      job.State(r.State),
		Info:       info,
		WorkerID:   wID,
		DeviceUDID: r.DeviceID,
	}, nil
}

// candidate evaluates the claim predicate on the stored form.
func (r jobRecord) candidate(f job.ClaimFilter, excluded map[string]struct{}) bool {
	if job.State(r.State).Terminal() {
		return false
	}
	if r.WorkerID != "" && r.WorkerID != f.WorkerID.String() {
		return false
	}
	if r.DeviceID != "" && r.DeviceID != f.DeviceUDID {
		return false
	}
	_, skip := excluded[r.ID]
	return !skip
}

type workerRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r workerRecord) toWorker() (*worker.Worker, error) {
	wID, err := id.ParseWorkerID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: parse worker id %q: %w", r.ID, err)
	}
	return &worker.Worker{
		Entity: backend.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:     wID,
		Name:   r.Name,
	}, nil
}

type deviceRecord struct {
	UDID       string         `json:"udid"`
	DeviceInfo map[string]any `json:"device_info"`
	Accounts   []string       `json:"accounts"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (r deviceRecord) toDevice() *device.Device {
	accounts := r.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	return &device.Device{
		Entity:     backend.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		UDID:       r.UDID,
		Info:       r.DeviceInfo,
		AccountIDs: accounts,
	}
}

type accountRecord struct {
	UniqueIdentifier string    `json:"unique_identifier"`
	AppleID          string    `json:"apple_id,omitempty"`
	StoreCountry     string    `json:"store_country"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (r accountRecord) toAccount() *account.Account {
	return &account.Account{
		Entity:           backend.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		UniqueIdentifier: r.UniqueIdentifier,
		AppleID:          r.AppleID,
		StoreCountry:     r.StoreCountry,
	}
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
