// Package observability provides Prometheus metrics for werkstatt runs:
// sandbox provisioning, gateway sessions, tool calls, model calls and the
// outbound HTTP clients that carry them.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// ProvisionBuckets covers sandbox lookups (sub-second) up to cold starts
// of several minutes.
var ProvisionBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}

var (
	// RunsTotal counts finished runs by outcome ("completed", "failed")
	// and, for failures, the error kind.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkstatt_runs_total",
			Help: "Finished agent runs",
		},
		[]string{"outcome", "kind"},
	)

	// RunTurns records the number of model turns a run needed.
	RunTurns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "werkstatt_run_turns",
			Help:    "Model turns per run",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	// ProvisionOperationsTotal counts provisioning backend operations by
	// backend, operation and outcome.
	ProvisionOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkstatt_provision_operations_total",
			Help: "Provisioning backend operations",
		},
		[]string{"backend", "operation", "outcome"},
	)

	// ProvisionDuration records how long Ensure and EnsurePreview took.
	ProvisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkstatt_provision_duration_seconds",
			Help:    "Provisioning duration",
			Buckets: ProvisionBuckets,
		},
		[]string{"backend", "operation"},
	)

	// GatewaySessionsActive tracks open tool gateway sessions.
	GatewaySessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "werkstatt_gateway_sessions_active",
			Help: "Open tool gateway sessions",
		},
	)

	// ProviderRequestsTotal counts requests sent to the model backend.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkstatt_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records model backend latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkstatt_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkstatt_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	// Status is "ok" or one of the tool error kinds.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkstatt_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// ToolDuration records tool call latency including retries.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkstatt_tool_duration_seconds",
			Help:    "Tool call duration",
			Buckets: LLMBuckets,
		},
		[]string{"tool_name"},
	)

	// HTTPClientRequestsTotal counts outbound HTTP requests per client.
	HTTPClientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkstatt_http_client_requests_total",
			Help: "Outbound HTTP requests",
		},
		[]string{"client", "code", "method"},
	)

	// HTTPClientDuration records outbound HTTP latency per client.
	HTTPClientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkstatt_http_client_duration_seconds",
			Help:    "Outbound HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"client", "method"},
	)

	// ServerRequestsTotal counts requests served by the local development
	// servers (gateway stub, mock control plane).
	ServerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werkstatt_server_requests_total",
			Help: "Served requests",
		},
		[]string{"server", "method", "status"},
	)

	// RateLimitWaitSeconds records time spent waiting on the outbound
	// request limiter.
	RateLimitWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "werkstatt_ratelimit_wait_seconds",
			Help:    "Time spent waiting for the request limiter",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"client"},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunTurns,
		ProvisionOperationsTotal,
		ProvisionDuration,
		GatewaySessionsActive,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ToolExecutionsTotal,
		ToolDuration,
		HTTPClientRequestsTotal,
		HTTPClientDuration,
		ServerRequestsTotal,
		RateLimitWaitSeconds,
	)
}
