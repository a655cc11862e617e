// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMStreamDuration tracks LLM streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "kind", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// PatchLocateTotal tracks patch locator outcomes by matcher stage.
	// Stage is "exact", "normalized", "relaxed", or "not_found".
	PatchLocateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patch_locate_total",
			Help: "Patch locator outcomes by matcher stage",
		},
		[]string{"stage"},
	)

	// EditsTotal tracks document edits by kind and outcome.
	EditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_edits_total",
			Help: "Document edit attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// ReflectionFailuresTotal tracks non-fatal reflection stream failures.
	ReflectionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reflection_failures_total",
			Help: "Reflection streams that failed after a committed edit",
		},
	)

	// VersionsCommittedTotal tracks version ledger commits by reason kind.
	VersionsCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "versions_committed_total",
			Help: "Document versions committed",
		},
		[]string{"kind"},
	)

	// ExchangesCancelledTotal tracks user-initiated exchange cancellations.
	ExchangesCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchanges_cancelled_total",
			Help: "Exchanges interrupted by a stop request",
		},
	)

	// SessionsActive tracks live authoring sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authoring_sessions_active",
			Help: "Number of live authoring sessions",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for an LLM streaming response.
// Kind is "chat", "reflection", or "generation".
func RecordLLMStream(model, kind, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, kind, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordPatchLocate records the matcher stage that resolved (or failed) a patch.
func RecordPatchLocate(stage string) {
	PatchLocateTotal.WithLabelValues(stage).Inc()
}

// RecordEdit records an edit attempt outcome.
func RecordEdit(kind, outcome string) {
	EditsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
