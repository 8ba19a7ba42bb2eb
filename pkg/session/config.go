package session

import (
	"context"
	"fmt"
	"time"
)

// Config holds session store configuration.
type Config struct {
	// TTL is the idle expiry duration. Default: 2h.
	TTL time.Duration `koanf:"ttl"`

	// KeyPrefix is the primary-tier key prefix. Default: "conversation:state:".
	KeyPrefix string `koanf:"key_prefix"`

	// Redis configures the durable primary tier. When nil, sessions live only
	// in the local cache.
	Redis *RedisConfig `koanf:"-"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		TTL:       DefaultTTL,
		KeyPrefix: DefaultKeyPrefix,
	}
}

// Open builds the two-tier store described by cfg. When a Redis tier is
// configured but unreachable, Open fails rather than silently degrading.
func Open(ctx context.Context, cfg Config, opts ...TieredOption) (*TieredStore, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	cache := NewMemoryStore(cfg.TTL)
	if cfg.Redis == nil {
		return NewTieredStore(nil, cache, opts...), nil
	}

	rc := *cfg.Redis
	rc.Prefix = cfg.KeyPrefix
	rc.SessionTTL = cfg.TTL

	t := NewTieredStore(nil, cache, opts...)
	primary, err := NewRedisStore(ctx, rc, WithRedisLogger(t.logger))
	if err != nil {
		return nil, fmt.Errorf("open redis session store: %w", err)
	}
	t.primary = primary
	return t, nil
}
