// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Total number of classifications by confidence source",
		},
		[]string{"source", "category"},
	)

	ModelAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_model_attempts_total",
			Help: "Total number of model attempts by outcome",
		},
		[]string{"model", "outcome"},
	)

	FallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_fallback_total",
			Help: "Total number of decisions produced by the rule fallback",
		},
	)

	ClassificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "triage_classification_duration_seconds",
			Help: "Duration of a full classification call in seconds",
		},
	)

	TicketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_tickets_processed_total",
			Help: "Total number of helpdesk tickets processed by the connector",
		},
		[]string{"status"},
	)

	ClassificationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "triage_classifications_active",
			Help: "Number of classifications currently in flight",
		},
	)
)
