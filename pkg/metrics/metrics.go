package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpaws_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openpaws_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AgentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpaws_agent_runs_total",
			Help: "Agent runs by type and final status",
		},
		[]string{"agent_type", "status"},
	)

	AgentRunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openpaws_agent_runs_in_flight",
			Help: "Agent runs currently executing or parked on approval",
		},
	)

	AgentStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openpaws_agent_step_duration_seconds",
			Help:    "Pipeline node execution time",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"step", "status"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpaws_llm_calls_total",
			Help: "Total number of LLM calls",
		},
		[]string{"model", "status"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpaws_llm_tokens_total",
			Help: "LLM tokens consumed",
		},
		[]string{"model", "type"},
	)

	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openpaws_tasks_processed_total",
			Help: "Background tasks processed by type and outcome",
		},
		[]string{"task", "status"},
	)
)
