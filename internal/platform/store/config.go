package store

import "time"

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG    PGConfig
	Mongo MongoConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// Guard/boot knobs:
	ConnectRetries int           // default 6 (63s(ish) max with exponential backoff)
	PingTimeout    time.Duration // default 5s
}

// MongoConfig configures mongodb connectivity
type MongoConfig struct {
	Enabled  bool
	URL      string
	Database string

	ConnectTimeout time.Duration // default 10s
}
