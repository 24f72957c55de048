// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_processed_total",
			Help: "Total number of dialogue turns processed",
		},
		[]string{"intent", "state"},
	)

	TurnsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_failed_total",
			Help: "Total number of turns that ended in the error state",
		},
		[]string{"error_code"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "assistant_turn_duration_seconds",
			Help: "Duration of turn processing in seconds",
		},
		[]string{"intent"},
	)

	AIFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_ai_fallbacks_total",
			Help: "AI provider invocations by outcome (merged, failed, skipped)",
		},
		[]string{"outcome"},
	)

	QuotesProduced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_quotes_produced_total",
			Help: "Total number of quote responses assembled",
		},
	)

	QuoteConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_quote_confidence",
			Help:    "Confidence of assembled quotes",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_active_sessions",
			Help: "Number of live dialogue sessions",
		},
	)

	TransactionsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_transactions_committed_total",
			Help: "Total number of confirmed transactions persisted",
		},
	)
)
