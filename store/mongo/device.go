package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/device"
)

// SaveDevice inserts or replaces the device with the same udid. The
// creation time is only written on insert.
func (s *Store) SaveDevice(ctx context.Context, d *device.Device) error {
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
		created = now()
	}

	update := bson.M{
		"$set": bson.M{
			"device_info": info,
			"accounts":    accounts,
			"updated_at":  now(),
		},
		"$setOnInsert": bson.M{"created_at": created},
	}
	_, err := s.db.Collection(colDevices).UpdateOne(ctx,
		bson.M{"_id": d.UDID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("backend/mongo: save device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by udid.
func (s *Store) GetDevice(ctx context.Context, udid string) (*device.Device, error) {
	var m deviceModel
	err := s.db.Collection(colDevices).FindOne(ctx, bson.M{"_id": udid}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, backend.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("backend/mongo: get device: %w", err)
	}
	return fromDeviceModel(&m), nil
}

// ListDevices returns devices matching opts ordered by udid.
func (s *Store) ListDevices(ctx context.Context, opts device.ListOpts) ([]*device.Device, error) {
	filter := bson.M{}
	if opts.AccountID != "" {
		filter["accounts"] = opts.AccountID
	}

	cursor, err := s.db.Collection(colDevices).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("backend/mongo: list devices: %w", err)
	}
	defer cursor.Close(ctx)

	var models []deviceModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("backend/mongo: decode devices: %w", err)
	}

	devices := make([]*device.Device, 0, len(models))
	for i := range models {
		devices = append(devices, fromDeviceModel(&models[i]))
	}
	return devices, nil
}
