package session

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTTL is how long an idle session stays valid.
	DefaultTTL = 2 * time.Hour
	// DefaultKeyPrefix is prepended to the session id for primary-tier keys.
	DefaultKeyPrefix = "conversation:state:"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSession is returned when a session fails validation.
	ErrInvalidSession = errors.New("invalid session")
	// ErrStorageClosed is returned when operating on a closed store.
	ErrStorageClosed = errors.New("session store is closed")
	// ErrCorruptSession is returned when a stored record cannot be decoded.
	ErrCorruptSession = errors.New("corrupt session record")
)

// Store abstracts session persistence.
// Implementations must be safe for concurrent use. Writes to the same key
// follow last-writer-wins.
type Store interface {
	// GetState returns the session with the given id.
	// Returns ErrSessionNotFound if it doesn't exist or has expired.
	GetState(ctx context.Context, id string) (*Session, error)

	// SaveState creates or overwrites the session keyed by its ID.
	SaveState(ctx context.Context, s *Session) error

	// DeleteState removes a session. Deleting a missing session is not an error.
	DeleteState(ctx context.Context, id string) error

	// ClearExpiredStates evicts every expired session and returns how many were removed.
	ClearExpiredStates(ctx context.Context) (int, error)

	// ActiveSessionCount returns the number of sessions that have not expired.
	ActiveSessionCount(ctx context.Context) (int, error)
}

// Clock returns the current time. Stores take one so tests can move time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
