// Package config loads engine settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the engine needs to run. JWT_SECRET has no
// default; refusing to start beats silently accepting forgeable tokens.
type Config struct {
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"engine.db"`
	JWTSecret    string `env:"JWT_SECRET,required,notEmpty"`

	MinBet float64 `env:"MIN_BET" envDefault:"0.1"`
	MaxBet float64 `env:"MAX_BET" envDefault:"10000"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"10"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.MinBet <= 0 || cfg.MaxBet <= cfg.MinBet {
		return nil, fmt.Errorf("bet bounds out of order: min %v, max %v", cfg.MinBet, cfg.MaxBet)
	}
	return &cfg, nil
}
