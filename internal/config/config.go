// Package config loads process configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"ADDR" envDefault:":8080"`

	// AllowedOrigins loosens the websocket origin check, e.g. for a dev
	// frontend on another port. Empty means same-origin only.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// RejoinGrace is how long a detached player may take to rejoin before
	// the session is destroyed. Zero destroys on disconnect immediately.
	RejoinGrace time.Duration `env:"REJOIN_GRACE" envDefault:"10s"`

	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}
