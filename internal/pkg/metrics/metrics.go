// Package metrics provides Prometheus instrumentation for the scoring pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fraud"

var (
	// PredictionsTotal counts scoring outcomes by status and risk level.
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total predictions by scoring status and risk level.",
		},
		[]string{"status", "risk_level"},
	)

	// PredictionDuration observes end-to-end scoring latency.
	PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Scoring latency in seconds by mode.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	// CacheRequestsTotal counts prediction cache lookups by result.
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Prediction cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	// BackendLoadTotal counts scoring backend load attempts.
	BackendLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_load_total",
			Help:      "Scoring backend load attempts by result.",
		},
		[]string{"result"},
	)

	// BatchItemsTotal counts batch items by outcome.
	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch scoring items by outcome (persisted, failed).",
		},
		[]string{"outcome"},
	)

	// AlertsCreatedTotal counts fraud alerts by level.
	AlertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Fraud alerts created by level.",
		},
		[]string{"level"},
	)

	// BreakerState reports the scoring backend breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_breaker_state",
			Help:      "Scoring backend circuit breaker state.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PredictionsTotal,
		PredictionDuration,
		CacheRequestsTotal,
		BackendLoadTotal,
		BatchItemsTotal,
		AlertsCreatedTotal,
		BreakerState,
	)
}
