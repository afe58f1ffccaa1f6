package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/device"
)

// SaveDevice inserts or replaces the device with the same udid. The
// creation time is only written when the hash is new.
func (s *Store) SaveDevice(ctx context.Context, d *device.Device) error {
	key := deviceKey(d.UDID)
	info := d.Info
	if info == nil {
		info = map[string]any{}
	}
	accounts := d.AccountIDs
	if accounts == nil {
		accounts = []string{}
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, "created_at", formatTime(created))
	pipe.HSet(ctx, key,
		"udid", d.UDID,
		"device_info", marshalJSON(info),
		"accounts", marshalJSON(accounts),
		"updated_at", formatTime(time.Now()),
	)
	pipe.ZAdd(ctx, deviceIDsKey, goredis.Z{Score: 0, Member: d.UDID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("backend/redis: save device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by udid.
func (s *Store) GetDevice(ctx context.Context, udid string) (*device.Device, error) {
	vals, err := s.client.HGetAll(ctx, deviceKey(udid)).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: get device: %w", err)
	}
	if len(vals) == 0 {
		return nil, backend.ErrDeviceNotFound
	}
	return mapToDevice(vals), nil
}

// ListDevices returns devices matching opts ordered by udid.
func (s *Store) ListDevices(ctx context.Context, opts device.ListOpts) ([]*device.Device, error) {
	udids, err := s.client.ZRange(ctx, deviceIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: list devices: %w", err)
	}
	keys := make([]string, len(udids))
	for i, u := range udids {
		keys[i] = deviceKey(u)
	}
	hashes, err := s.hgetAll(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("backend/redis: list devices: %w", err)
	}

	devices := make([]*device.Device, 0, len(hashes))
	for _, h := range hashes {
		if len(h) == 0 {
			continue
		}
		d := mapToDevice(h)
		if opts.AccountID != "" && !slices.Contains(d.AccountIDs, opts.AccountID) {
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func mapToDevice(m map[string]string) *device.Device {
	return &device.Device{
		Entity: backend.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		UDID:       m["udid"],
		Info:       unmarshalObject(m["device_info"]),
		AccountIDs: unmarshalStrings(m["accounts"]),
	}
}
