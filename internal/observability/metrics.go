// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring plan generation.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planforge_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planforge_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// ProviderRequestsTotal counts provider attempts; status is "ok" or the error type.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planforge_provider_requests_total",
			Help: "Provider attempts",
		},
		[]string{"provider", "model", "status"},
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planforge_provider_latency_seconds",
			Help:    "Provider attempt latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planforge_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planforge_provider_retries_total",
			Help: "Retries scheduled after a retryable provider failure",
		},
		[]string{"provider", "error_type"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planforge_fallbacks_total",
			Help: "Fallbacks from a failed primary to an alternate provider",
		},
		[]string{"from", "to"},
	)

	// GenerationFailuresTotal counts generations that failed for good.
	GenerationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planforge_generation_failures_total",
			Help: "Generations that failed after retries and fallback",
		},
		[]string{"provider", "error_type"},
	)

	PlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planforge_plans_total",
			Help: "Plans by outcome",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ProviderRetriesTotal,
		FallbacksTotal,
		GenerationFailuresTotal,
		PlansTotal,
	)
}
