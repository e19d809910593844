package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/remote-device-control/backend/internal/model"
)

// Store exposes keyed access to the device and admin collections.
type Store struct {
	devices *mongo.Collection
	admins  *mongo.Collection
}

// NewStore creates a Store on the named database.
func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		devices: db.Collection(devicesCollection),
		admins:  db.Collection(adminsCollection),
	}
}

// FindDeviceByID resolves a device identifier, returning
// model.ErrDeviceNotFound when the identifier is unknown.
func (s *Store) FindDeviceByID(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	err := s.devices.FindOne(ctx, bson.M{"deviceId": deviceID}).Decode(&device)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device %s: %w", deviceID, err)
	}
	return &device, nil
}

// UpsertDevice inserts a device document or refreshes an existing one by
// deviceId. Returns the stored document.
func (s *Store) UpsertDevice(ctx context.Context, device *model.Device) (*model.Device, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":       device.Name,
			"model":      device.Model,
			"osVersion":  device.OSVersion,
			"lastSeenAt": now,
		},
		"$setOnInsert": bson.M{
			"deviceId":     device.DeviceID,
			"registeredAt": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored model.Device
	err := s.devices.FindOneAndUpdate(ctx, bson.M{"deviceId": device.DeviceID}, update, opts).Decode(&stored)
	if err != nil {
		return nil, fmt.Errorf("upsert device %s: %w", device.DeviceID, err)
	}
	return &stored, nil
}

// ListDevices returns all registered devices sorted by name.
func (s *Store) ListDevices(ctx context.Context) ([]*model.Device, error) {
	cursor, err := s.devices.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer cursor.Close(ctx)

	var devices []*model.Device
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	return devices, nil
}

// FindAdminByUsername resolves an admin account by username.
func (s *Store) FindAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	var admin model.Admin
	err := s.admins.FindOne(ctx, bson.M{"username": username}).Decode(&admin)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find admin %s: %w", username, err)
	}
	return &admin, nil
}

// InsertAdmin creates an admin account. The unique index turns concurrent
// duplicate registrations into model.ErrUsernameTaken.
func (s *Store) InsertAdmin(ctx context.Context, admin *model.Admin) error {
	_, err := s.admins.InsertOne(ctx, admin)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("insert admin %s: %w", admin.Username, err)
	}
	return nil
}
