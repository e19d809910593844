// Package config loads broker configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration for the broker.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"devicecontrol"`

	// PendingTimeout bounds how long a session may wait in PENDING_ADMIN
	// before the broker rejects it on the admin's behalf.
	PendingTimeout time.Duration `env:"PENDING_ADMIN_TIMEOUT" envDefault:"30s"`

	WriteWait      time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	PongWait       time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.PendingTimeout <= 0 {
		return cfg, fmt.Errorf("PENDING_ADMIN_TIMEOUT must be positive, got %s", cfg.PendingTimeout)
	}
	return cfg, nil
}
