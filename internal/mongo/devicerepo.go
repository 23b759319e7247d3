package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/tenant"
)

const devicesCollection = "kiosk_devices"

type DeviceRepo struct {
	base *BaseRepo
}

func NewDeviceRepo(base *BaseRepo) *DeviceRepo {
	return &DeviceRepo{base: base}
}

func (r *DeviceRepo) col(tn tenant.Context) *mongo.Collection {
	return r.base.Database(tn).Collection(devicesCollection)
}

func (r *DeviceRepo) Create(ctx context.Context, tn tenant.Context, d *kiosk.Device) error {
	if d == nil {
		return fmt.Errorf("device is nil")
	}
	if _, err := r.col(tn).InsertOne(ctx, d); err != nil {
		return fmt.Errorf("cannot create device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) Get(ctx context.Context, tn tenant.Context, id uuid.UUID) (*kiosk.Device, error) {
	var d kiosk.Device
	err := r.col(tn).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get device: %w", err)
	}
	return &d, nil
}

func (r *DeviceRepo) List(ctx context.Context, tn tenant.Context) ([]*kiosk.Device, error) {
	cursor, err := r.col(tn).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("cannot list devices: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*kiosk.Device
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode devices: %w", err)
	}
	return result, nil
}

// Save refuses to overwrite a record that is already deactivated.
// Deactivation is terminal; a stale snapshot from a racing rotate or status
// change must not write the device back to life.
func (r *DeviceRepo) Save(ctx context.Context, tn tenant.Context, d *kiosk.Device) error {
	if d == nil {
		return fmt.Errorf("device is nil")
	}
	filter := bson.M{
		"_id":    d.ID,
		"status": bson.M{"$ne": kiosk.DeviceDeactivated},
	}
	res, err := r.col(tn).ReplaceOne(ctx, filter, d)
	if err != nil {
		return fmt.Errorf("cannot save device: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("device %s is deactivated or missing: %w", d.ID, fault.ErrInvalidState)
	}
	return nil
}

func (r *DeviceRepo) Delete(ctx context.Context, tn tenant.Context, id uuid.UUID) error {
	res, err := r.col(tn).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("cannot delete device: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("device %s: %w", id, fault.ErrNotFound)
	}
	return nil
}
