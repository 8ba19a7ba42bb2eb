// Package dialogue drives a learner through the tutoring conversation: it
// resolves the session, classifies each message, runs the handler for the
// session's phase and persists the result.
package dialogue

import (
	"context"

	"github.com/aixgo-dev/codenav/internal/nlp"
	"github.com/aixgo-dev/codenav/internal/pathgen"
	"github.com/aixgo-dev/codenav/pkg/session"
)

// ResponseType discriminates responses.
type ResponseType string

const (
	TypeTextResponse          ResponseType = "TEXT_RESPONSE"
	TypeClarificationNeeded   ResponseType = "CLARIFICATION_NEEDED"
	TypeLearningPathGenerated ResponseType = "LEARNING_PATH_GENERATED"
	TypeErrorMessage          ResponseType = "ERROR_MESSAGE"
)

// MessageType tags the content of an inbound message.
type MessageType string

const (
	MessageTypeText MessageType = "TEXT"
	// MessageTypeCode marks a pasted code snippet. During task execution it
	// is treated as a review request.
	MessageTypeCode MessageType = "CODE"
)

// Request is one inbound learner message.
type Request struct {
	SessionID         string      `json:"sessionId,omitempty"`
	UserID            string      `json:"userId"`
	Message           string      `json:"message"`
	Type              MessageType `json:"type,omitempty"`
	PreferredProvider string      `json:"preferredProvider,omitempty"`
}

// SuggestedAction is a follow-up the client can offer as a button.
type SuggestedAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

// Response is the single result of processing a message.
type Response struct {
	SessionID        string            `json:"sessionId"`
	Type             ResponseType      `json:"type"`
	Message          string            `json:"message"`
	Confidence       float64           `json:"confidence"`
	Phase            session.Phase     `json:"phase,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	SuggestedActions []SuggestedAction `json:"suggestedActions,omitempty"`
}

// Classifier interprets a message in the context of a phase.
type Classifier interface {
	Classify(text string, phase session.Phase) (nlp.Result, error)
}

// ChatBackend answers free-form questions.
type ChatBackend interface {
	SendMessage(ctx context.Context, text string) (string, error)
	SendMessageWithProvider(ctx context.Context, text, providerID string) (string, error)
}

// PathGenerator builds a learning path for a goal and level. slots carries
// the session context, e.g. a planned time_duration.
type PathGenerator interface {
	GeneratePath(ctx context.Context, technology string, level session.Level, slots map[string]string) (*pathgen.Path, error)
}
