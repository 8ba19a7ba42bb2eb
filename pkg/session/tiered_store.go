package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// TieredStore combines an optional durable primary Store with an in-process
// cache. Reads prefer the primary and fall back to the cache when the primary
// fails; writes always go to the cache and then to the primary, and only fail
// when both tiers fail.
type TieredStore struct {
	primary    Store
	cache      *MemoryStore
	logger     *zap.Logger
	onFallback func(op string)
}

// TieredOption configures a TieredStore.
type TieredOption func(*TieredStore)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(logger *zap.Logger) TieredOption {
	return func(t *TieredStore) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithFallbackHook registers a callback invoked every time an operation is
// served by the cache because the primary failed.
func WithFallbackHook(fn func(op string)) TieredOption {
	return func(t *TieredStore) {
		t.onFallback = fn
	}
}

// NewTieredStore builds a two-tier store. primary may be nil, in which case
// the cache is the only tier.
func NewTieredStore(primary Store, cache *MemoryStore, opts ...TieredOption) *TieredStore {
	t := &TieredStore{
		primary: primary,
		cache:   cache,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HasPrimary reports whether a durable tier is configured.
func (t *TieredStore) HasPrimary() bool {
	return t.primary != nil
}

func (t *TieredStore) fallback(op, id string, err error) {
	t.logger.Warn("primary session store failed, using local cache",
		zap.String("op", op),
		zap.String("session_id", id),
		zap.Error(err),
	)
	if t.onFallback != nil {
		t.onFallback(op)
	}
}

// GetState reads from the primary, refreshing the cache on success. A primary
// miss or error is answered from the cache, which holds every session this
// process has written.
func (t *TieredStore) GetState(ctx context.Context, id string) (*Session, error) {
	if t.primary == nil {
		return t.cache.GetState(ctx, id)
	}

	s, err := t.primary.GetState(ctx, id)
	switch {
	case err == nil:
		_ = t.cache.SaveState(ctx, s)
		return s, nil
	case errors.Is(err, ErrSessionNotFound):
		return t.cache.GetState(ctx, id)
	default:
		t.fallback("get", id, err)
		cached, cacheErr := t.cache.GetState(ctx, id)
		if cacheErr != nil {
			if errors.Is(cacheErr, ErrSessionNotFound) {
				return nil, fmt.Errorf("primary store: %w", err)
			}
			return nil, errors.Join(err, cacheErr)
		}
		return cached, nil
	}
}

// SaveState writes the cache first, then the primary.
func (t *TieredStore) SaveState(ctx context.Context, s *Session) error {
	cacheErr := t.cache.SaveState(ctx, s)
	if t.primary == nil {
		return cacheErr
	}

	if err := t.primary.SaveState(ctx, s); err != nil {
		if cacheErr != nil {
			return errors.Join(err, cacheErr)
		}
		t.fallback("save", s.ID, err)
	}
	return nil
}

// DeleteState removes the session from both tiers.
func (t *TieredStore) DeleteState(ctx context.Context, id string) error {
	cacheErr := t.cache.DeleteState(ctx, id)
	if t.primary == nil {
		return cacheErr
	}

	if err := t.primary.DeleteState(ctx, id); err != nil {
		if cacheErr != nil {
			return errors.Join(err, cacheErr)
		}
		t.fallback("delete", id, err)
	}
	return nil
}

// ClearExpiredStates sweeps both tiers and returns the total number evicted.
func (t *TieredStore) ClearExpiredStates(ctx context.Context) (int, error) {
	removed, err := t.cache.ClearExpiredStates(ctx)
	if err != nil {
		return 0, err
	}
	if t.primary == nil {
		return removed, nil
	}

	primaryRemoved, err := t.primary.ClearExpiredStates(ctx)
	if err != nil {
		t.fallback("clear_expired", "", err)
		return removed, nil
	}
	return removed + primaryRemoved, nil
}

// ActiveSessionCount reports the primary count, or the cache count when the
// primary is absent or failing.
func (t *TieredStore) ActiveSessionCount(ctx context.Context) (int, error) {
	if t.primary != nil {
		n, err := t.primary.ActiveSessionCount(ctx)
		if err == nil {
			return n, nil
		}
		t.fallback("count", "", err)
	}
	return t.cache.ActiveSessionCount(ctx)
}

// Ping checks the primary tier when it supports health checks.
func (t *TieredStore) Ping(ctx context.Context) error {
	if p, ok := t.primary.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the primary tier when it holds resources.
func (t *TieredStore) Close() error {
	if c, ok := t.primary.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
