package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory.
// It is the local tier of a TieredStore and the only tier when no primary is configured.
type MemoryStore struct {
	sessions map[string]*Session
	ttl      time.Duration
	now      Clock
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store. A non-positive ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      systemClock,
	}
}

// GetState returns a copy of the stored session. Expired entries are evicted on read.
func (m *MemoryStore) GetState(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrSessionNotFound
	}
	if !s.Expired(m.now(), m.ttl) {
		c := s.Clone()
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	// Re-check: a concurrent save may have refreshed the entry.
	if cur, ok := m.sessions[id]; ok && cur.Expired(m.now(), m.ttl) {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	return nil, ErrSessionNotFound
}

// SaveState stores a copy of s, replacing any previous value.
func (m *MemoryStore) SaveState(_ context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c := s.Clone()

	m.mu.Lock()
	m.sessions[c.ID] = c
	m.mu.Unlock()

	return nil
}

// DeleteState removes the session if present.
func (m *MemoryStore) DeleteState(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// ClearExpiredStates sweeps every entry and removes the expired ones.
func (m *MemoryStore) ClearExpiredStates(_ context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now, m.ttl) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// ActiveSessionCount counts the entries that have not expired.
func (m *MemoryStore) ActiveSessionCount(_ context.Context) (int, error) {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, s := range m.sessions {
		if !s.Expired(now, m.ttl) {
			active++
		}
	}
	return active, nil
}
