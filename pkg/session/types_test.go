package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	now := time.Now()
	s, err := New("abc", "user-1", now)
	require.NoError(t, err)

	assert.Equal(t, PhaseGreeting, s.Phase)
	assert.Zero(t, s.MessageCount)
	assert.NotNil(t, s.Context)
	assert.True(t, s.LastInteraction.Equal(now))
	assert.NoError(t, s.Validate())

	_, err = New("", "user-1", now)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSession_Clone(t *testing.T) {
	s, err := New("abc", "user-1", time.Now())
	require.NoError(t, err)
	s.Context["technology"] = "Go"

	c := s.Clone()
	c.Context["technology"] = "Rust"
	c.Phase = PhaseGoalIdentification

	assert.Equal(t, "Go", s.Context["technology"])
	assert.Equal(t, PhaseGreeting, s.Phase)
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{LastInteraction: now.Add(-90 * time.Minute)}

	assert.False(t, s.Expired(now, 2*time.Hour))
	assert.True(t, s.Expired(now, time.Hour))
	assert.False(t, s.Expired(now, 0))
}

func TestPhaseAndLevelValid(t *testing.T) {
	for _, p := range Phases {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, Phase("").Valid())

	assert.True(t, LevelAdvanced.Valid())
	assert.False(t, Level("").Valid())
	assert.False(t, Level("GURU").Valid())
}
