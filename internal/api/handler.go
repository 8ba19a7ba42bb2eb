// Package api exposes the dialogue engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aixgo-dev/codenav/internal/dialogue"
	"github.com/aixgo-dev/codenav/pkg/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxRequestBodySize bounds inbound message bodies.
const maxRequestBodySize = 1 << 20 // 1MB

// MessageProcessor handles one learner message.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, req dialogue.Request) dialogue.Response
}

// Handler serves the conversation endpoints.
type Handler struct {
	engine  MessageProcessor
	store   session.Store
	limiter *RateLimiter
	logger  *zap.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithRateLimiter limits message posts per client.
func WithRateLimiter(rl *RateLimiter) HandlerOption {
	return func(h *Handler) {
		h.limiter = rl
	}
}

// NewHandler creates a conversation handler.
func NewHandler(engine MessageProcessor, store session.Store, logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{engine: engine, store: store, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/conversations", func(r chi.Router) {
		if h.limiter != nil {
			r.With(h.limiter.Middleware).Post("/messages", h.PostMessage)
		} else {
			r.Post("/messages", h.PostMessage)
		}
		r.Get("/stats", h.Stats)
		r.Get("/{id}", h.GetConversation)
		r.Delete("/{id}", h.DeleteConversation)
	})
}

// PostMessage processes one message. Only malformed JSON is rejected; engine
// failures are conversational ERROR_MESSAGE responses and still answer 200.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req dialogue.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Missing or unknown fields fall back to defaults; the engine answers an
	// empty message like any other.
	if req.Type != dialogue.MessageTypeCode {
		req.Type = dialogue.MessageTypeText
	}

	JSON(w, http.StatusOK, h.engine.ProcessMessage(r.Context(), req))
}

// GetConversation returns the stored session.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.store.GetState(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", zap.String("session_id", id), zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	JSON(w, http.StatusOK, s)
}

// DeleteConversation removes a session. Deleting an unknown id succeeds.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteState(r.Context(), id); err != nil {
		h.logger.Error("failed to delete conversation", zap.String("session_id", id), zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats reports the number of live sessions.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.ActiveSessionCount(r.Context())
	if err != nil {
		h.logger.Error("failed to count sessions", zap.Error(err))
		Error(w, http.StatusInternalServerError, "failed to count sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]int{"activeSessions": count})
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
