// Package session provides conversation state persistence for the dialogue engine.
// A Session records where a learner is in the guided conversation (its phase),
// what has been learned about them so far, and when they were last active.
package session

import (
	"fmt"
	"maps"
	"time"
)

// Phase is a named state of the conversation state machine.
type Phase string

const (
	PhaseGreeting           Phase = "GREETING"
	PhaseGoalIdentification Phase = "GOAL_IDENTIFICATION"
	PhaseSkillAssessment    Phase = "SKILL_ASSESSMENT"
	PhasePathPlanning       Phase = "PATH_PLANNING"
	PhaseTaskExecution      Phase = "TASK_EXECUTION"
	PhaseReviewFeedback     Phase = "REVIEW_FEEDBACK"
)

// Phases lists every phase in conversation order.
var Phases = []Phase{
	PhaseGreeting,
	PhaseGoalIdentification,
	PhaseSkillAssessment,
	PhasePathPlanning,
	PhaseTaskExecution,
	PhaseReviewFeedback,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Level is the assessed skill level of a learner.
type Level string

const (
	LevelBeginner     Level = "BEGINNER"
	LevelIntermediate Level = "INTERMEDIATE"
	LevelAdvanced     Level = "ADVANCED"
)

// Valid reports whether l is a known level. The empty level is not valid.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	default:
		return false
	}
}

// Session is the persisted record of one conversation.
type Session struct {
	// ID is the opaque unique key of the session.
	ID string `json:"sessionId"`
	// UserID identifies the owner.
	UserID string `json:"userId"`
	// Phase is the current state of the conversation.
	Phase Phase `json:"phase"`
	// LearningGoal is the resolved technology, empty until resolved.
	LearningGoal string `json:"learningGoal,omitempty"`
	// UserLevel is the assessed level, empty until assessed.
	UserLevel Level `json:"userLevel,omitempty"`
	// MessageCount is the number of processed messages.
	MessageCount int `json:"messageCount"`
	// Context holds accumulated slot values.
	Context map[string]string `json:"context"`
	// LastInteraction is used for expiry.
	LastInteraction time.Time `json:"lastInteraction"`
}

// New returns a session in the GREETING phase with no messages.
func New(id, userID string, now time.Time) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	return &Session{
		ID:              id,
		UserID:          userID,
		Phase:           PhaseGreeting,
		Context:         make(map[string]string),
		LastInteraction: now.UTC(),
	}, nil
}

// Validate checks the structural invariants of a session.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidSession, s.Phase)
	}
	if s.MessageCount < 0 {
		return fmt.Errorf("%w: negative message count", ErrInvalidSession)
	}
	if s.Phase == PhaseTaskExecution && (s.LearningGoal == "" || !s.UserLevel.Valid()) {
		return fmt.Errorf("%w: %s requires a learning goal and level", ErrInvalidSession, s.Phase)
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Context = make(map[string]string, len(s.Context))
	maps.Copy(c.Context, s.Context)
	return &c
}

// Expired reports whether the session has been idle longer than ttl.
// A non-positive ttl never expires.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LastInteraction) > ttl
}
