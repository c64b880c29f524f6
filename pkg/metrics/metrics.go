// Package metrics holds the Prometheus collectors shared by the research
// engine, the search adapters and the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCalls counts search provider calls by provider, operation and outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_provider_calls_total",
		Help: "Search provider calls by provider, operation and outcome",
	}, []string{"provider", "op", "outcome"})

	// ThrottleRetries counts retries caused by a rate-limit signal.
	ThrottleRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_throttle_retries_total",
		Help: "Retries after a provider rate-limit signal",
	}, []string{"provider"})

	// ModelInvocations counts model calls by pipeline phase and outcome.
	ModelInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_model_invocations_total",
		Help: "Language model invocations by phase and outcome",
	}, []string{"phase", "outcome"})

	// Runs counts finished research runs.
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_runs_total",
		Help: "Research runs by report variant and outcome",
	}, []string{"variant", "outcome"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_run_duration_seconds",
		Help:    "Wall time of a research run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
	}, []string{"variant"})

	// ExtractorStrategy counts which step of the structured-output extractor
	// produced the value.
	ExtractorStrategy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_extractor_strategy_total",
		Help: "Structured-output extractor results by winning strategy",
	}, []string{"strategy"})
)
