// Package observability collects Prometheus metrics for the agent runtime
// and the HTTP gateway. Metrics register on the default registry and are
// served by the gateway's /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every metric the process exports. Create one instance at
// startup and share it; promauto panics on duplicate registration.
// All Record helpers are safe to call on a nil receiver so components can
// run unmetered in tests.
type Metrics struct {
	// LLMRequestCounter counts chat completion calls.
	// Labels: model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures chat completion latency in seconds.
	// Labels: model
	LLMRequestDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool dispatches.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveRuntimes gauges the number of cached session runtimes.
	ActiveRuntimes prometheus.Gauge

	// StepCounter counts agent loop turns.
	// Labels: outcome (finished|interrupt|error)
	StepCounter *prometheus.CounterVec

	// HTTPRequestCounter counts gateway requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures gateway request latency in seconds.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ownagent_llm_requests_total",
				Help: "Total number of LLM requests by model and status",
			},
			[]string{"model", "status"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ownagent_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ownagent_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ownagent_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"tool_name"},
		),

		ActiveRuntimes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ownagent_active_runtimes",
				Help: "Current number of cached session runtimes",
			},
		),

		StepCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ownagent_steps_total",
				Help: "Total number of agent loop turns by outcome",
			},
			[]string{"outcome"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ownagent_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ownagent_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// RecordLLMRequest records one chat completion call.
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordToolExecution records one tool dispatch.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordStep records the terminal outcome of one agent turn.
func (m *Metrics) RecordStep(outcome string) {
	if m == nil {
		return
	}
	m.StepCounter.WithLabelValues(outcome).Inc()
}

// RuntimeStarted increments the active runtime gauge.
func (m *Metrics) RuntimeStarted() {
	if m == nil {
		return
	}
	m.ActiveRuntimes.Inc()
}

// RuntimeStopped decrements the active runtime gauge.
func (m *Metrics) RuntimeStopped() {
	if m == nil {
		return
	}
	m.ActiveRuntimes.Dec()
}

// RecordHTTPRequest records one gateway request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
