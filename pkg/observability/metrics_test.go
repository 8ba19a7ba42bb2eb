package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDialogueMessage(t *testing.T) {
	before := testutil.ToFloat64(dialogueMessagesTotal.WithLabelValues("GREETING", "GREETING"))
	RecordDialogueMessage("GREETING", "GREETING", 5*time.Millisecond)
	after := testutil.ToFloat64(dialogueMessagesTotal.WithLabelValues("GREETING", "GREETING"))
	assert.Equal(t, before+1, after)
}

func TestRecordPhaseTransition_IgnoresSelfLoops(t *testing.T) {
	counter := phaseTransitionsTotal.WithLabelValues("TASK_EXECUTION", "TASK_EXECUTION")
	before := testutil.ToFloat64(counter)
	RecordPhaseTransition("TASK_EXECUTION", "TASK_EXECUTION")
	assert.Equal(t, before, testutil.ToFloat64(counter))

	moved := phaseTransitionsTotal.WithLabelValues("GREETING", "GOAL_IDENTIFICATION")
	before = testutil.ToFloat64(moved)
	RecordPhaseTransition("GREETING", "GOAL_IDENTIFICATION")
	assert.Equal(t, before+1, testutil.ToFloat64(moved))
}

func TestSessionGauges(t *testing.T) {
	SetActiveSessions(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(activeSessions))

	before := testutil.ToFloat64(expiredSessionsTotal)
	AddExpiredSessions(0)
	AddExpiredSessions(3)
	assert.Equal(t, before+3, testutil.ToFloat64(expiredSessionsTotal))
}

func TestMetricsHandler(t *testing.T) {
	InitMetrics()
	InitMetrics() // idempotent

	RecordChatRequest("mock", "ok", time.Millisecond)
	RecordStoreFallback("get")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "codenav_chat_requests_total"))
	assert.True(t, strings.Contains(body, "codenav_session_store_fallbacks_total"))
}
