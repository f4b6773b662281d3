package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// How long a disconnected player keeps their seat before the
	// room removes them.
	GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"30s"`

	// File-store directory for match records. Ignored when a
	// Postgres DSN is configured.
	MatchesDir  string `env:"MATCHES_DIR" envDefault:"matches"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
