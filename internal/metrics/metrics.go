package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed tracks pipeline jobs per stage and outcome
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_jobs_processed_total",
			Help: "Total number of pipeline jobs processed",
		},
		[]string{"stage", "outcome"},
	)

	// AICallsTotal tracks AI completion calls per provider and model
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_ai_calls_total",
			Help: "Total number of AI completion calls",
		},
		[]string{"provider", "model", "outcome"},
	)

	// ProviderRotations tracks failover rotations away from a provider
	ProviderRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_provider_rotations_total",
			Help: "Total number of AI provider failover rotations",
		},
		[]string{"provider"},
	)

	// AccountsDiscovered tracks accounts found by search per topic
	AccountsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_accounts_discovered_total",
			Help: "Total number of accounts discovered by search",
		},
		[]string{"topic"},
	)

	// AccountsClassified tracks classification results per category
	AccountsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_accounts_classified_total",
			Help: "Total number of accounts classified",
		},
		[]string{"stage", "category"},
	)

	// QueueDepth tracks waiting jobs per stage
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scout_queue_depth",
			Help: "Number of jobs waiting per stage",
		},
		[]string{"stage"},
	)

	// FallbackActivations counts switches to in-process execution
	FallbackActivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_fallback_activations_total",
			Help: "Times the broker was unreachable and a search ran in-process",
		},
	)

	// ContentFetchLatency tracks content API latency per endpoint
	ContentFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_content_fetch_latency_seconds",
			Help:    "Content API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
