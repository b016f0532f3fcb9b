package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mixmirror_queue_depth",
		Help: "Current number of mutations waiting for the persistence actor.",
	})

	MutationsEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mixmirror_mutations_enqueued_total",
		Help: "Total number of mutations accepted by the mirror front-end.",
	}, []string{"kind"})

	MutationsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixmirror_mutations_rejected_total",
		Help: "Total number of mutations refused because the queue was closed.",
	})

	MutationsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mixmirror_mutations_applied_total",
		Help: "Total number of mutations applied to storage.",
	}, []string{"kind"})

	MutationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mixmirror_mutation_failures_total",
		Help: "Total number of mutations that failed to apply.",
	}, []string{"kind"})

	FailureLogsSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixmirror_failure_logs_suppressed_total",
		Help: "Total number of failure log lines dropped by rate limiting.",
	})

	ApplyDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mixmirror_apply_seconds",
		Help:    "Time spent applying a single mutation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	PropertiesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixmirror_properties_dropped_total",
		Help: "Total number of property keys removed by the property filter.",
	})

	DeadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixmirror_dead_letters_total",
		Help: "Total number of failed mutations recorded in the dead-letter spool.",
	})

	DeadLetterDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mixmirror_dead_letter_depth",
		Help: "Current number of dead-lettered mutations awaiting replay.",
	})

	BackoffWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mixmirror_backoff_wait_seconds",
		Help:    "Delay inserted before a storage call after consecutive failures.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	ConfigReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixmirror_config_reloads_total",
		Help: "Total number of configuration reloads applied at runtime.",
	})
)
