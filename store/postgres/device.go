package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/device"
)

const deviceColumns = `udid, device_info, accounts, created_at, updated_at`

// SaveDevice inserts or replaces the device with the same udid. The
// original creation time is kept on replace.
func (s *Store) SaveDevice(ctx context.Context, d *device.Device) error {
	info, err := jsonDoc(d.Info)
	if err != nil {
		return fmt.Errorf("backend/postgres: encode device info: %w", err)
	}
	accounts := d.AccountIDs
	if accounts == nil {
		accounts = []string{}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO dios_devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (udid) DO UPDATE SET
			device_info = EXCLUDED.device_info,
			accounts = EXCLUDED.accounts,
			updated_at = NOW()`,
		d.UDID, info, accounts, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("backend/postgres: save device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by udid.
func (s *Store) GetDevice(ctx context.Context, udid string) (*device.Device, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM dios_devices WHERE udid = $1`, udid)
	d, err := scanDevice(row)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("backend/postgres: get device: %w", err)
	}
	return d, nil
}

// ListDevices returns devices matching opts ordered by udid.
func (s *Store) ListDevices(ctx context.Context, opts device.ListOpts) ([]*device.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM dios_devices`
	args := []any{}
	if opts.AccountID != "" {
		query += ` WHERE $1 = ANY(accounts)`
		args = append(args, opts.AccountID)
	}
	query += ` ORDER BY udid ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("backend/postgres: list devices: %w", err)
	}
	defer rows.Close()

	devices := []*device.Device{}
	for rows.Next() {
		d, scanErr := scanDevice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("backend/postgres: scan device row: %w", scanErr)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backend/postgres: iterate device rows: %w", err)
	}
	return devices, nil
}

func scanDevice(row pgx.Row) (*device.Device, error) {
	var (
		d    device.Device
		info []byte
	)
	if err := row.Scan(&d.UDID, &info, &d.AccountIDs, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &d.Info); err != nil {
			return nil, fmt.Errorf("backend/postgres: decode device info: %w", err)
		}
	}
	if d.AccountIDs == nil {
		d.AccountIDs = []string{}
	}
	return &d, nil
}
