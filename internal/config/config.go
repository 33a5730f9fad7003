package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the service.
type Config struct {
	Addr         string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`

	PGDSN string `envconfig:"PG_DSN"`

	// JWTSecret enables bearer-token verification on the HTTP surface.
	// Empty disables authentication entirely (tests, local runs behind a proxy).
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`

	// NdaGrantTTL bounds how long an approved NDA keeps its view grant alive.
	NdaGrantTTL   time.Duration `envconfig:"NDA_GRANT_TTL" default:"2160h"`
	SweepSchedule string        `envconfig:"SWEEP_SCHEDULE" default:"@hourly"`
	SweepBatch    int           `envconfig:"SWEEP_BATCH" default:"500"`

	RateBurst     int   `envconfig:"RATE_BURST" default:"40"`
	RatePerSecond int   `envconfig:"RATE_PER_SECOND" default:"20"`
	MaxBodyBytes  int64 `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// Load reads configuration from PITCHVAULT_* environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("PITCHVAULT", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.NdaGrantTTL <= 0 {
		return Config{}, errors.New("nda grant ttl must be positive")
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 500
	}
	return cfg, nil
}
