package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aixgo-dev/codenav/internal/nlp"
	"github.com/aixgo-dev/codenav/internal/observability"
	metrics "github.com/aixgo-dev/codenav/pkg/observability"
	"github.com/aixgo-dev/codenav/pkg/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Defaults
const (
	DefaultChatTimeout = 30 * time.Second
	AnonymousUserID    = "anonymous"
)

// DefaultFeatured are the technologies offered when no list is configured.
var DefaultFeatured = []string{"Java", "Spring Boot", "Python"}

// Context keys written by the engine.
const (
	ContextLastIntent    = "last_intent"
	ContextPreviousPhase = "previous_phase"
	ContextPathSummary   = "path_summary"
	ContextLastFeedback  = "last_feedback"
)

// Engine orchestrates one conversation turn. It is safe for concurrent use;
// the store is the only shared mutable state.
type Engine struct {
	store       session.Store
	classifier  Classifier
	chat        ChatBackend
	paths       PathGenerator
	featured    []string
	chatTimeout time.Duration
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithChatTimeout bounds every chat backend call.
func WithChatTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.chatTimeout = d
		}
	}
}

// WithFeatured sets the technologies suggested at the start of a conversation.
// Only the first three are used.
func WithFeatured(techs []string) Option {
	return func(e *Engine) {
		if len(techs) >= 3 {
			e.featured = append([]string(nil), techs[:3]...)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine wires the engine to its collaborators.
func NewEngine(store session.Store, classifier Classifier, chat ChatBackend, paths PathGenerator, opts ...Option) (*Engine, error) {
	switch {
	case store == nil:
		return nil, errors.New("dialogue: session store is required")
	case classifier == nil:
		return nil, errors.New("dialogue: classifier is required")
	case chat == nil:
		return nil, errors.New("dialogue: chat backend is required")
	case paths == nil:
		return nil, errors.New("dialogue: path generator is required")
	}

	e := &Engine{
		store:       store,
		classifier:  classifier,
		chat:        chat,
		paths:       paths,
		featured:    DefaultFeatured,
		chatTimeout: DefaultChatTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// turn carries the state of one message through the pipeline.
type turn struct {
	req    Request
	result nlp.Result
	sess   *session.Session
}

// ProcessMessage handles one learner message and always returns exactly one
// response. Failures, including panics, become an ERROR_MESSAGE with
// confidence 0 and leave the stored session untouched.
func (e *Engine) ProcessMessage(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	phase := "unresolved"

	ctx, span := observability.StartSpan(ctx, "dialogue.process_message",
		attribute.String("session.id", req.SessionID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.logger.Error("message processing panicked",
				zap.String("session_id", req.SessionID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			observability.RecordError(span, err)
			resp = errorResponse(req.SessionID, msgInternalError)
		}
		span.SetAttributes(
			attribute.String("dialogue.phase", phase),
			attribute.String("dialogue.response_type", string(resp.Type)),
		)
		metrics.RecordDialogueMessage(phase, string(resp.Type), time.Since(start))
	}()

	resp, err := e.process(ctx, req, &phase)
	if err != nil {
		e.logger.Error("failed to process message",
			zap.String("session_id", resp.SessionID),
			zap.String("phase", phase),
			zap.Error(err),
		)
		observability.RecordError(span, err)
		return errorResponse(resp.SessionID, msgInternalError)
	}
	return resp
}

// process runs the pipeline. On error the returned response only carries the
// session id, if one was resolved.
func (e *Engine) process(ctx context.Context, req Request, phase *string) (Response, error) {
	if req.UserID == "" {
		req.UserID = AnonymousUserID
	}

	stored, err := e.resolveSession(ctx, req)
	if err != nil {
		return Response{SessionID: req.SessionID}, err
	}
	*phase = string(stored.Phase)

	t := &turn{req: req, sess: stored.Clone()}

	t.result, err = e.classifier.Classify(req.Message, t.sess.Phase)
	if err != nil {
		return Response{SessionID: stored.ID}, fmt.Errorf("classify: %w", err)
	}
	if req.Type == MessageTypeCode && t.sess.Phase == session.PhaseTaskExecution {
		t.result.Intent = nlp.IntentRequestReview
	}
	accumulate(t.sess, t.result)

	resp, err := e.dispatch(ctx, t)
	if err != nil {
		return Response{SessionID: stored.ID}, fmt.Errorf("%s handler: %w", stored.Phase, err)
	}

	if t.sess.Phase != stored.Phase {
		t.sess.Context[ContextPreviousPhase] = string(stored.Phase)
		metrics.RecordPhaseTransition(string(stored.Phase), string(t.sess.Phase))
		e.logger.Debug("phase transition",
			zap.String("session_id", stored.ID),
			zap.String("from", string(stored.Phase)),
			zap.String("to", string(t.sess.Phase)),
			zap.String("intent", string(t.result.Intent)),
		)
	}

	t.sess.MessageCount++
	t.sess.LastInteraction = e.now()
	if err := e.store.SaveState(ctx, t.sess); err != nil {
		return Response{SessionID: stored.ID}, fmt.Errorf("save session: %w", err)
	}

	resp.SessionID = t.sess.ID
	resp.Phase = t.sess.Phase
	return resp, nil
}

// resolveSession loads the requested session or starts a new one. An unknown
// id starts a new session under that id.
func (e *Engine) resolveSession(ctx context.Context, req Request) (*session.Session, error) {
	if req.SessionID == "" {
		return session.New(e.newID(), req.UserID, e.now())
	}

	s, err := e.store.GetState(ctx, req.SessionID)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, session.ErrSessionNotFound):
		return session.New(req.SessionID, req.UserID, e.now())
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}
}

// accumulate records recognized entities and the intent in the session context.
func accumulate(s *session.Session, result nlp.Result) {
	for k, v := range result.Entities {
		s.Context[k] = v
	}
	s.Context[ContextLastIntent] = string(result.Intent)
}

func (e *Engine) dispatch(ctx context.Context, t *turn) (Response, error) {
	switch t.sess.Phase {
	case session.PhaseGreeting:
		return e.handleGreeting(t), nil
	case session.PhaseGoalIdentification:
		return e.handleGoalIdentification(t), nil
	case session.PhaseSkillAssessment:
		return e.handleSkillAssessment(t), nil
	case session.PhasePathPlanning:
		return e.handlePathPlanning(ctx, t), nil
	case session.PhaseTaskExecution:
		return e.handleTaskExecution(ctx, t), nil
	case session.PhaseReviewFeedback:
		return e.handleReviewFeedback(t), nil
	default:
		return Response{}, fmt.Errorf("no handler for phase %q", t.sess.Phase)
	}
}

func errorResponse(sessionID, message string) Response {
	return Response{
		SessionID:  sessionID,
		Type:       TypeErrorMessage,
		Message:    message,
		Confidence: 0,
	}
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
