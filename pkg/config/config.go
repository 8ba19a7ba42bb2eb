// Package config loads the codenav server configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/aixgo-dev/codenav/internal/chat"
	"github.com/aixgo-dev/codenav/internal/logging"
	"github.com/aixgo-dev/codenav/internal/observability"
	"github.com/aixgo-dev/codenav/pkg/session"
	"github.com/robfig/cron/v3"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig         `koanf:"server"`
	Session SessionConfig        `koanf:"session"`
	Redis   RedisConfig          `koanf:"redis"`
	Chat    chat.Config          `koanf:"chat"`
	Log     logging.Config       `koanf:"log"`
	Tracing observability.Config `koanf:"tracing"`

	// LexiconPath replaces the built-in classifier keyword tables when set.
	LexiconPath string `koanf:"lexicon_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RatePerSecond limits message posts per client address. Zero disables it.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// SessionConfig holds session lifetime settings.
type SessionConfig struct {
	TTL       time.Duration `koanf:"ttl"`
	KeyPrefix string        `koanf:"key_prefix"`
	// SweepSchedule is a cron spec for purging expired sessions, e.g. "@every 10m".
	// Empty disables the sweeper.
	SweepSchedule string `koanf:"sweep_schedule"`
}

// RedisConfig configures the durable session tier.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	PoolSize int    `koanf:"pool_size"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RatePerSecond:   2,
			Burst:           10,
		},
		Session: SessionConfig{
			TTL:           session.DefaultTTL,
			KeyPrefix:     session.DefaultKeyPrefix,
			SweepSchedule: "@every 10m",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Chat: chat.DefaultConfig(),
		Log:  logging.NewDefaultConfig(),
		Tracing: observability.Config{
			ServiceName: observability.DefaultServiceName,
			Exporter:    observability.ExporterNone,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if c.Server.RatePerSecond < 0 || c.Server.Burst < 0 {
		errs = append(errs, errors.New("server rate limit must not be negative"))
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL))
	}
	if c.Session.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Session.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("session.sweep_schedule: %w", err))
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
		}
		if c.Redis.DB < 0 {
			errs = append(errs, errors.New("redis.db must not be negative"))
		}
	}

	if err := c.Chat.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SessionStore returns the session store settings, including the Redis tier
// when enabled.
func (c *Config) SessionStore() session.Config {
	sc := session.Config{
		TTL:       c.Session.TTL,
		KeyPrefix: c.Session.KeyPrefix,
	}
	if c.Redis.Enabled {
		sc.Redis = &session.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			PoolSize: c.Redis.PoolSize,
		}
	}
	return sc
}
