package bunstore

import (
	"context"
	"fmt"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/device"
)

// SaveDevice inserts or replaces the device with the same udid, keeping
// the stored creation time.
func (s *Store) SaveDevice(ctx context.Context, d *device.Device) error {
	_, err := s.db.NewInsert().Model(toDeviceModel(d)).
		On("CONFLICT (udid) DO UPDATE").
		Set("device_info = EXCLUDED.device_info").
		Set("accounts = EXCLUDED.accounts").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("backend/bun: save device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by udid.
func (s *Store) GetDevice(ctx context.Context, udid string) (*device.Device, error) {
	m := new(deviceModel)
	err := s.db.NewSelect().Model(m).
		Where("udid = ?", udid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("backend/bun: get device: %w", err)
	}
	return fromDeviceModel(m), nil
}

// ListDevices returns devices matching opts ordered by udid.
func (s *Store) ListDevices(ctx context.Context, opts device.ListOpts) ([]*device.Device, error) {
	var models []deviceModel
	q := s.db.NewSelect().Model(&models)
	if opts.AccountID != "" {
		q = q.Where("? = ANY(accounts)", opts.AccountID)
	}
	if err := q.Order("udid ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("backend/bun: list devices: %w", err)
	}

	devices := make([]*device.Device, 0, len(models))
	for i := range models {
		devices = append(devices, fromDeviceModel(&models[i]))
	}
	return devices, nil
}
