// Package mg provides a MongoDB client using the official driver
package mg

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Config configures the mongo client
type Config struct {
	URL            string
	Database       string
	AppName        string
	ConnectTimeout time.Duration
}

// MG is a mongo client bound to one database
type MG struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Open connects and verifies the server is reachable
func Open(ctx context.Context, cfg Config) (*MG, error) {
	to := cfg.ConnectTimeout
	if to <= 0 {
		to = 10 * time.Second
	}
	opts := options.Client().ApplyURI(cfg.URL).SetConnectTimeout(to)
	if cfg.AppName != "" {
		opts = opts.SetAppName(cfg.AppName)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return &MG{Client: client, DB: client.Database(cfg.Database)}, nil
}

// Collection returns a handle for the named collection
func (m *MG) Collection(name string) *mongo.Collection {
	return m.DB.Collection(name)
}

// Ping verifies connectivity
func (m *MG) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (m *MG) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
