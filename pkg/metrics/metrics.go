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
		[]string{"model", "status"},
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

	// NodeTransitionsTotal tracks workflow node executions by outcome.
	NodeTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_node_transitions_total",
			Help: "Workflow node executions by outcome",
		},
		[]string{"node", "outcome"},
	)

	// NodeDuration tracks time spent inside each node.
	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_node_duration_seconds",
			Help:    "Workflow node execution time",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"node"},
	)

	// RunsTotal tracks finished runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_runs_total",
			Help: "Workflow runs by final status",
		},
		[]string{"tenant_id", "status"},
	)

	// CacheLookupsTotal tracks semantic cache lookups.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_lookups_total",
			Help: "Semantic cache lookups by result",
		},
		[]string{"result"},
	)

	// ConfidenceScore tracks assessed answer confidence.
	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_confidence_score",
			Help:    "Assessed answer confidence",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		},
	)

	// EscalationsTotal tracks escalations to a human.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_escalations_total",
			Help: "Escalations to a human",
		},
		[]string{"tenant_id"},
	)

	// ResolutionsTotal tracks human resolutions by outcome.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_resolutions_total",
			Help: "Human resolutions by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// TurnsTotal tracks history turns appended.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_turns_total",
			Help: "Total history turns appended",
		},
		[]string{"tenant_id", "sender"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for an LLM streaming response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordNode records one node execution.
func RecordNode(node, outcome string, duration float64) {
	NodeTransitionsTotal.WithLabelValues(node, outcome).Inc()
	NodeDuration.WithLabelValues(node).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
