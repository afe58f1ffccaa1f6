package mongo

import (
	"fmt"
	"time"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/worker"
)

// ── Job model ─────────────────────────────────────────────────────

// jobModel stores unset references as empty strings so claim filters can
// match them with $in.
type jobModel struct {
	ID        string         `bson:"_id"`
	Type      string         `bson:"type"`
	State     string         `bson:"state"`
	JobInfo   map[string]any `bson:"job_info"`
	WorkerID  string         `bson:"worker_id"`
	DeviceID  string         `bson:"device_id"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	info := map[string]any(j.Info)
	if info == nil {
		info = map[string]any{}
	}
	return &jobModel{
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

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: parse job id %q: %w", m.ID, err)
	}
	workerID, err := id.ParseOptional(m.WorkerID, id.PrefixWorker)
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: parse worker id %q: %w", m.WorkerID, err)
	}

	info := job.Info(normalizeMap(m.JobInfo))
	if info == nil {
		info = job.Info{}
	}

	return &job.Job{
		Entity: backend.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:         parsedID,
		Type:       job.Type(m.Type),
		State:      job.State(m.State),
		Info:       info,
		WorkerID:   workerID,
		DeviceUDID: m.DeviceID,
	}, nil
}

// ── Worker model ──────────────────────────────────────────────────

type workerModel struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toWorkerModel(w *worker.Worker) *workerModel {
	return &workerModel{
		ID:        w.ID.String(),
		Name:      w.Name,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func fromWorkerModel(m *workerModel) (*worker.Worker, error) {
	parsedID, err := id.ParseWorkerID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: parse worker id %q: %w", m.ID, err)
	}
	return &worker.Worker{
		Entity: backend.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:     parsedID,
		Name:   m.Name,
	}, nil
}

// ── Device model ──────────────────────────────────────────────────

type deviceModel struct {
	UDID       string         `bson:"_id"`
	DeviceInfo map[string]any `bson:"device_info"`
	Accounts   []string       `bson:"accounts"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

func fromDeviceModel(m *deviceModel) *device.Device {
	accounts := m.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	return &device.Device{
		Entity:     backend.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		UDID:       m.UDID,
		Info:       normalizeMap(m.DeviceInfo),
		AccountIDs: accounts,
	}
}

// ── Account model ─────────────────────────────────────────────────

type accountModel struct {
	UniqueIdentifier string    `bson:"_id"`
	AppleID          string    `bson:"apple_id,omitempty"`
	StoreCountry     string    `bson:"store_country"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity:           backend.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		UniqueIdentifier: m.UniqueIdentifier,
		AppleID:          m.AppleID,
		StoreCountry:     m.StoreCountry,
	}
}
