// Package observability exposes Prometheus metrics and health checks for the
// tutor service.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codenav_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codenav_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Dialogue metrics
	dialogueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codenav_dialogue_messages_total",
			Help: "Total number of processed messages by phase and response type",
		},
		[]string{"phase", "type"},
	)

	dialogueDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codenav_dialogue_processing_duration_seconds",
			Help:    "Time spent processing one message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	phaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codenav_phase_transitions_total",
			Help: "Total number of conversation phase transitions",
		},
		[]string{"from", "to"},
	)

	// Chat backend metrics
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codenav_chat_requests_total",
			Help: "Total number of chat backend requests",
		},
		[]string{"provider", "status"},
	)

	chatRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codenav_chat_request_duration_seconds",
			Help:    "Chat backend request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Session store metrics
	storeFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codenav_session_store_fallbacks_total",
			Help: "Operations served by the local cache because the primary store failed",
		},
		[]string{"op"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codenav_active_sessions",
			Help: "Number of non-expired sessions",
		},
	)

	expiredSessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codenav_expired_sessions_total",
			Help: "Total number of sessions evicted by the expiry sweep",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the metrics with the default Prometheus registry
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			dialogueMessagesTotal,
			dialogueDuration,
			phaseTransitionsTotal,
			chatRequestsTotal,
			chatRequestDuration,
			storeFallbacksTotal,
			activeSessions,
			expiredSessionsTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDialogueMessage records one processed message
func RecordDialogueMessage(phase, responseType string, duration time.Duration) {
	dialogueMessagesTotal.WithLabelValues(phase, responseType).Inc()
	dialogueDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordPhaseTransition counts a move between phases. Staying in the same
// phase is not a transition.
func RecordPhaseTransition(from, to string) {
	if from == to {
		return
	}
	phaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordChatRequest records a chat backend call
func RecordChatRequest(provider, status string, duration time.Duration) {
	chatRequestsTotal.WithLabelValues(provider, status).Inc()
	chatRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordStoreFallback counts an operation answered by the local cache
func RecordStoreFallback(op string) {
	storeFallbacksTotal.WithLabelValues(op).Inc()
}

// SetActiveSessions sets the active sessions gauge
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// AddExpiredSessions adds to the expired sessions counter
func AddExpiredSessions(count int) {
	if count > 0 {
		expiredSessionsTotal.Add(float64(count))
	}
}
