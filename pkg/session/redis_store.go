package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements Store using Redis.
// It is the durable primary tier and is suitable for multi-node deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    Clock
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger used to report undecodable records.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(r *RedisStore) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "conversation:state:").
	Prefix string
	// SessionTTL is the session expiry duration (default: 2h).
	SessionTTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.SessionTTL, opts...), nil
}

// NewRedisStoreFromClient creates a store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    systemClock,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStorageClosed
	}
	return nil
}

// SaveState writes the session as JSON with the store TTL.
func (r *RedisStore) SaveState(ctx context.Context, s *Session) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetState loads the session. A value whose lastInteraction is older than the
// TTL is treated as missing even if Redis has not expired the key yet.
func (r *RedisStore) GetState(ctx context.Context, id string) (*Session, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	s, err := r.load(ctx, r.key(id))
	if err != nil {
		return nil, err
	}

	if s.Expired(r.now(), r.ttl) {
		_ = r.client.Del(ctx, r.key(id)).Err()
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *RedisStore) load(ctx context.Context, key string) (*Session, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSession, key, err)
	}
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	return &s, nil
}

// DeleteState removes the session key.
func (r *RedisStore) DeleteState(ctx context.Context, id string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ClearExpiredStates scans the key space and deletes sessions whose
// lastInteraction is past the TTL. Redis key expiry handles the common case;
// the sweep catches values written with a stale lastInteraction. Records that
// cannot be decoded are deleted too and count as removed.
func (r *RedisStore) ClearExpiredStates(ctx context.Context) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}

	removed := 0
	del := func(key string) error {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("delete expired session: %w", err)
		}
		removed++
		return nil
	}
	err := r.scan(ctx, func(key string, s *Session) error {
		if s == nil || s.Expired(r.now(), r.ttl) {
			return del(key)
		}
		return nil
	})
	return removed, err
}

// ActiveSessionCount counts stored sessions that have not expired.
func (r *RedisStore) ActiveSessionCount(ctx context.Context) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}

	active := 0
	err := r.scan(ctx, func(_ string, s *Session) error {
		if s != nil && !s.Expired(r.now(), r.ttl) {
			active++
		}
		return nil
	})
	return active, err
}

// scan calls fn for every session key. Undecodable records are logged and
// passed to fn with a nil session.
func (r *RedisStore) scan(ctx context.Context, fn func(key string, s *Session) error) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		s, err := r.load(ctx, key)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			// Expired between SCAN and GET
			continue
		case errors.Is(err, ErrCorruptSession):
			r.logger.Warn("undecodable session record", zap.String("key", key), zap.Error(err))
			s = nil
		case err != nil:
			return err
		}
		if err := fn(key, s); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan sessions: %w", err)
	}
	return nil
}

// Ping checks if the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

// Close releases resources held by the store.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.client.Close()
}
