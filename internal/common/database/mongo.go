// internal/common/database/mongo.go
package database

import (
	"context"
	"fmt"

	"mergington-activities/internal/common/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultMongoDatabase = "mergington"

type MongoClient struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewMongo creates a client from a mongodb:// or mongodb+srv:// URL. The
// configured database name always wins over one embedded in the URL.
// Connect does not dial; use Ping to check reachability.
func NewMongo(ctx context.Context, cfg config.StoreConfig) (*MongoClient, error) {
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetServerSelectionTimeout(config.GetDuration(cfg.ConnectTimeout)).
		SetConnectTimeout(config.GetDuration(cfg.ConnectTimeout))
	if cfg.MaxConnections > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxConnections))
	}
	if cfg.MaxIdle > 0 {
		opts.SetMinPoolSize(uint64(cfg.MaxIdle))
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid mongo url: %w", err)
	}

	name := cfg.Database
	if name == "" {
		name = defaultMongoDatabase
	}
	return &MongoClient{Client: client, DB: client.Database(name)}, nil
}

// Ping checks that a primary is reachable.
func (c *MongoClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping failed: %w", err)
	}
	return nil
}

func (c *MongoClient) Close() error {
	if c.Client != nil {
		return c.Client.Disconnect(context.Background())
	}
	return nil
}
