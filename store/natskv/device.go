package natskv

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/device"
)

// SaveDevice inserts or replaces the device with the same udid, keeping
// the stored creation time.
func (s *Store) SaveDevice(ctx context.Context, d *device.Device) error {
	key := naturalKey(d.UDID)
	accounts := d.AccountIDs
	if accounts == nil {
		accounts = []string{}
	}
	info := d.Info
	if info == nil {
		info = map[string]any{}
	}

	for i := 0; i < maxCASRetries; i++ {
		rec := deviceRecord{
			UDID:       d.UDID,
			DeviceInfo: info,
			Accounts:   accounts,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  time.Now().UTC(),
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = rec.UpdatedAt
		}

		var rev uint64
		entry, err := s.devices.Get(ctx, key)
		switch {
		case err == nil:
			prev, decErr := decode[deviceRecord](entry.Value())
			if decErr != nil {
				return fmt.Errorf("backend/natskv: decode device: %w", decErr)
			}
			rec.CreatedAt = prev.CreatedAt
			rev = entry.Revision()
		case !isNotFound(err):
			return fmt.Errorf("backend/natskv: get device: %w", err)
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("backend/natskv: encode device: %w", err)
		}
		if rev == 0 {
			_, err = s.devices.Create(ctx, key, data)
		} else {
			_, err = s.devices.Update(ctx, key, data, rev)
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("backend/natskv: save device: %w", err)
		}
	}
	return fmt.Errorf("backend/natskv: save device: %d revision conflicts on %s", maxCASRetries, d.UDID)
}

// GetDevice retrieves a device by udid.
func (s *Store) GetDevice(ctx context.Context, udid string) (*device.Device, error) {
	if udid == "" {
		return nil, backend.ErrDeviceNotFound
	}
	entry, err := s.devices.Get(ctx, naturalKey(udid))
	if err != nil {
		if isNotFound(err) {
			return nil, backend.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("backend/natskv: get device: %w", err)
	}
	rec, err := decode[deviceRecord](entry.Value())
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: decode device: %w", err)
	}
	return rec.toDevice(), nil
}

// ListDevices returns devices matching opts ordered by udid.
func (s *Store) ListDevices(ctx context.Context, opts device.ListOpts) ([]*device.Device, error) {
	ks, err := keys(ctx, s.devices)
	if err != nil {
		return nil, fmt.Errorf("backend/natskv: list device keys: %w", err)
	}

	devices := make([]*device.Device, 0, len(ks))
	for _, k := range ks {
		entry, getErr := s.devices.Get(ctx, k)
		if getErr != nil {
			if isNotFound(getErr) {
				continue
			}
			return nil, fmt.Errorf("backend/natskv: get device %s: %w", k, getErr)
		}
		rec, decErr := decode[deviceRecord](entry.Value())
		if decErr != nil {
			return nil, fmt.Errorf("backend/natskv: decode device %s: %w", k, decErr)
		}
		if opts.AccountID != "" && !slices.Contains(rec.Accounts, opts.AccountID) {
			continue
		}
		devices = append(devices, rec.toDevice())
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].UDID < devices[j].UDID })
	return devices, nil
}
