package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/account"
	"github.com/DiOS-Analysis/Backend/device"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
	"github.com/DiOS-Analysis/Backend/worker"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:dios_jobs"`

	ID        string         `bun:"id,pk"`
	Type      string         `bun:"type,notnull"`
	State     string         `bun:"state,notnull"`
	JobInfo   map[string]any `bun:"job_info,type:jsonb,notnull"`
	WorkerID  string         `bun:"worker_id,notnull"`
	DeviceID  string         `bun:"device_id,notnull"`
	CreatedAt time.Time      `bun:"created_at,notnull"`
	UpdatedAt time.Time      `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("backend/bun: parse job id %q: %w", m.ID, err)
	}
	workerID, err := id.ParseOptional(m.WorkerID, id.PrefixWorker)
	if err != nil {
		return nil, fmt.Errorf("backend/bun: parse worker id %q: %w", m.WorkerID, err)
	}

	info := job.Info(m.JobInfo)
	if info == nil {
		info = job.Info{}
	}

	return &job.Job{
		Entity: backend.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         parsedID,
		Type:       job.Type(m.Type),
		State:      job.State(m.State),
		Info:       info,
		WorkerID:   workerID,
		DeviceUDID: m.DeviceID,
	}, nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── Worker model ──────────────────────────────────────────────────

type workerModel struct {
	bun.BaseModel `bun:"table:dios_workers"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("backend/bun: parse worker id %q: %w", m.ID, err)
	}
	return &worker.Worker{
		Entity: backend.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:     parsedID,
		Name:   m.Name,
	}, nil
}

// ── Device model ──────────────────────────────────────────────────

type deviceModel struct {
	bun.BaseModel `bun:"table:dios_devices"`

	UDID       string         `bun:"udid,pk"`
	DeviceInfo map[string]any `bun:"device_info,type:jsonb,notnull"`
	Accounts   []string       `bun:"accounts,array,notnull"`
	CreatedAt  time.Time      `bun:"created_at,notnull"`
	UpdatedAt  time.Time      `bun:"updated_at,notnull"`
}

func toDeviceModel(d *device.Device) *deviceModel {
	info := d.Info
	if info == nil {
		info = map[string]any{}
	}
	accounts := d.AccountIDs
	if accounts == nil {
		accounts = []string{}
	}
	return &deviceModel{
		UDID:       d.UDID,
		DeviceInfo: info,
		Accounts:   accounts,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func fromDeviceModel(m *deviceModel) *device.Device {
	accounts := m.Accounts
	if accounts == nil {
		accounts = []string{}
	}
	return &device.Device{
		Entity:     backend.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		UDID:       m.UDID,
		Info:       m.DeviceInfo,
		AccountIDs: accounts,
	}
}

// ── Account model ─────────────────────────────────────────────────

type accountModel struct {
	bun.BaseModel `bun:"table:dios_accounts"`

	UniqueIdentifier string    `bun:"unique_identifier,pk"`
	AppleID          string    `bun:"apple_id,notnull"`
	StoreCountry     string    `bun:"store_country,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
	UpdatedAt        time.Time `bun:"updated_at,notnull"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		UniqueIdentifier: a.UniqueIdentifier,
		AppleID:          a.AppleID,
		StoreCountry:     a.StoreCountry,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity:           backend.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		UniqueIdentifier: m.UniqueIdentifier,
		AppleID:          m.AppleID,
		StoreCountry:     m.StoreCountry,
	}
}
