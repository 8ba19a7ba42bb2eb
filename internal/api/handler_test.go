package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aixgo-dev/codenav/internal/chat"
	"github.com/aixgo-dev/codenav/internal/dialogue"
	"github.com/aixgo-dev/codenav/internal/nlp"
	"github.com/aixgo-dev/codenav/internal/pathgen"
	"github.com/aixgo-dev/codenav/pkg/observability"
	"github.com/aixgo-dev/codenav/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processorFunc adapts a function to MessageProcessor.
type processorFunc func(ctx context.Context, req dialogue.Request) dialogue.Response

func (f processorFunc) ProcessMessage(ctx context.Context, req dialogue.Request) dialogue.Response {
	return f(ctx, req)
}

func newTestRouter(t *testing.T, engine MessageProcessor, store session.Store) http.Handler {
	t.Helper()
	observability.InitMetrics()
	return NewRouter(NewHandler(engine, store, nil), observability.NewHealthChecker("test"))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostMessage(t *testing.T) {
	var got dialogue.Request
	engine := processorFunc(func(_ context.Context, req dialogue.Request) dialogue.Response {
		got = req
		return dialogue.Response{
			SessionID:  "s-1",
			Type:       dialogue.TypeTextResponse,
			Message:    "hi",
			Confidence: 1,
			Phase:      session.PhaseGreeting,
		}
	})
	router := newTestRouter(t, engine, session.NewMemoryStore(0))

	rec := do(t, router, http.MethodPost, "/api/v1/conversations/messages",
		`{"sessionId":"s-1","userId":"u-1","message":"你好","preferredProvider":"openai"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, dialogue.Request{SessionID: "s-1", UserID: "u-1", Message: "你好", Type: dialogue.MessageTypeText, PreferredProvider: "openai"}, got)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TEXT_RESPONSE", resp["type"])
	assert.Equal(t, "s-1", resp["sessionId"])
	assert.Equal(t, "GREETING", resp["phase"])
}

func TestPostMessage_BadRequests(t *testing.T) {
	engine := processorFunc(func(context.Context, dialogue.Request) dialogue.Response {
		t.Fatal("engine should not be called")
		return dialogue.Response{}
	})
	router := newTestRouter(t, engine, session.NewMemoryStore(0))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"message":`, http.StatusBadRequest},
		{"not an object", `["hi"]`, http.StatusBadRequest},
		{"too large", `{"message":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/conversations/messages", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestPostMessage_SubstitutesDefaults(t *testing.T) {
	var got []dialogue.Request
	engine := processorFunc(func(_ context.Context, req dialogue.Request) dialogue.Response {
		got = append(got, req)
		return dialogue.Response{Type: dialogue.TypeTextResponse}
	})
	router := newTestRouter(t, engine, session.NewMemoryStore(0))

	tests := []struct {
		name string
		body string
		want dialogue.Request
	}{
		{"empty message", `{"sessionId":"s-1","message":"   "}`, dialogue.Request{SessionID: "s-1", Message: "   ", Type: dialogue.MessageTypeText}},
		{"missing message", `{"userId":"u-1"}`, dialogue.Request{UserID: "u-1", Type: dialogue.MessageTypeText}},
		{"unknown type", `{"message":"x","type":"IMAGE"}`, dialogue.Request{Message: "x", Type: dialogue.MessageTypeText}},
		{"code type kept", `{"message":"func main() {}","type":"CODE"}`, dialogue.Request{Message: "func main() {}", Type: dialogue.MessageTypeCode}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/conversations/messages", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, got, i+1)
			assert.Equal(t, tt.want, got[i])
		})
	}
}

func TestGetAndDeleteConversation(t *testing.T) {
	store := session.NewMemoryStore(session.DefaultTTL)
	s, err := session.New("s-42", "u-1", time.Now().UTC())
	require.NoError(t, err)
	s.Phase = session.PhaseSkillAssessment
	s.LearningGoal = "Go"
	require.NoError(t, store.SaveState(context.Background(), s))

	router := newTestRouter(t, processorFunc(nil), store)

	rec := do(t, router, http.MethodGet, "/api/v1/conversations/s-42", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	assert.Equal(t, "s-42", loaded.ID)
	assert.Equal(t, session.PhaseSkillAssessment, loaded.Phase)
	assert.Equal(t, "Go", loaded.LearningGoal)

	rec = do(t, router, http.MethodGet, "/api/v1/conversations/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activeSessions":1}`, rec.Body.String())

	rec = do(t, router, http.MethodDelete, "/api/v1/conversations/s-42", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/conversations/s-42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/v1/conversations/s-42", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// brokenStore fails every operation.
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) GetState(context.Context, string) (*session.Session, error) { return nil, errStoreDown }
func (brokenStore) SaveState(context.Context, *session.Session) error          { return errStoreDown }
func (brokenStore) DeleteState(context.Context, string) error                  { return errStoreDown }
func (brokenStore) ClearExpiredStates(context.Context) (int, error)            { return 0, errStoreDown }
func (brokenStore) ActiveSessionCount(context.Context) (int, error)            { return 0, errStoreDown }

func TestConversationRoutes_StoreFailure(t *testing.T) {
	router := newTestRouter(t, processorFunc(nil), brokenStore{})

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/api/v1/conversations/s-1"},
		{http.MethodDelete, "/api/v1/conversations/s-1"},
		{http.MethodGet, "/api/v1/conversations/stats"},
	} {
		rec := do(t, router, tc.method, tc.target, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.target)
		assert.NotContains(t, rec.Body.String(), "store down", tc.target)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := newTestRouter(t, processorFunc(nil), session.NewMemoryStore(0))

	rec := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, router, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Generate one recorded request before scraping
	do(t, router, http.MethodGet, "/api/v1/conversations/stats", "")
	rec = do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/api/v1/conversations/stats"`)
}

func TestEndToEnd_Conversation(t *testing.T) {
	lex, err := nlp.DefaultLexicon()
	require.NoError(t, err)
	gen, err := pathgen.NewGenerator()
	require.NoError(t, err)
	chatSvc, err := chat.Open(chat.DefaultConfig())
	require.NoError(t, err)

	store := session.NewTieredStore(nil, session.NewMemoryStore(session.DefaultTTL))
	engine, err := dialogue.NewEngine(store, nlp.NewClassifier(lex), chatSvc, gen)
	require.NoError(t, err)

	router := newTestRouter(t, engine, store)

	send := func(sessionID, message string) dialogue.Response {
		body, err := json.Marshal(dialogue.Request{SessionID: sessionID, UserID: "u-1", Message: message})
		require.NoError(t, err)
		rec := do(t, router, http.MethodPost, "/api/v1/conversations/messages", string(bytes.TrimSpace(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp dialogue.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := send("", "你好")
	require.NotEmpty(t, resp.SessionID)
	id := resp.SessionID

	for _, msg := range []string{"我想学习Python", "Python", "有一些经验"} {
		resp = send(id, msg)
		assert.NotEqual(t, dialogue.TypeErrorMessage, resp.Type, msg)
	}
	assert.Equal(t, session.PhasePathPlanning, resp.Phase)

	resp = send(id, "好的，开始")
	assert.Equal(t, dialogue.TypeLearningPathGenerated, resp.Type)
	assert.Equal(t, session.PhaseTaskExecution, resp.Phase)
	assert.Contains(t, resp.Data, "path")

	resp = send(id, "asyncio怎么用？")
	assert.Equal(t, dialogue.TypeTextResponse, resp.Type)
	assert.Contains(t, resp.Message, "asyncio怎么用？")

	rec := do(t, router, http.MethodGet, "/api/v1/conversations/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, 6, s.MessageCount)
	assert.Equal(t, "Python", s.LearningGoal)
	assert.Equal(t, session.LevelIntermediate, s.UserLevel)
}
