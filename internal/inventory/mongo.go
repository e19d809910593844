// Package inventory provides the device and administrator identity store,
// backed by MongoDB and accessed only through find/insert/update-by-key
// operations.
package inventory

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/remote-device-control/backend/internal/config"
	"github.com/remote-device-control/backend/internal/logger"
)

const (
	devicesCollection = "devices"
	adminsCollection  = "admins"

	connectTimeout = 15 * time.Second
)

// Connect establishes the MongoDB client, verifies it with a ping and
// ensures the unique index on the device identifier.
func Connect(ctx context.Context, cfg config.Config) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName("device-control-broker").
		SetMinPoolSize(2).
		SetMaxPoolSize(16)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	devices := client.Database(cfg.MongoDatabase).Collection(devicesCollection)
	_, err = devices.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "deviceId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("devices_device_id_unique"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create device index: %w", err)
	}

	admins := client.Database(cfg.MongoDatabase).Collection(adminsCollection)
	_, err = admins.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("admins_username_unique"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create admin index: %w", err)
	}

	logger.Infof("connected to mongodb database=%s", cfg.MongoDatabase)
	return client, nil
}

// Disconnect closes the MongoDB client with a bounded timeout.
func Disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Errorf("mongodb disconnect: %v", err)
	}
}
