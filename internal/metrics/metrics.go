// Package metrics provides Prometheus metrics collection for the prediction
// engine. It defines counters and histograms for prediction serving,
// training outcomes, and fallback usage, exposed on the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction engine.
type Metrics struct {
	PredictionsTotal   prometheus.Counter   // Total number of ensemble predictions served
	TrainFailuresTotal prometheus.Counter   // Total number of per-strategy training failures
	FallbackUseTotal   prometheus.Counter   // Total number of times the fallback chain was used
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	PredictionScores   prometheus.Histogram // Distribution of served final scores
	TrainingDuration   prometheus.Histogram // Duration of full TrainAll runs in seconds
	StrategiesTrained  prometheus.Gauge     // Number of strategies that trained successfully in the last run
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ensemble_predictions_total",
			Help: "Total number of ensemble predictions served",
		}),
		TrainFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ensemble_train_failures_total",
			Help: "Total number of per-strategy training failures",
		}),
		FallbackUseTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ensemble_fallback_use_total",
			Help: "Total number of times the prediction fallback chain was used",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ensemble_prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ensemble_prediction_scores",
			Help:    "Distribution of served ensemble final scores",
			Buckets: prometheus.LinearBuckets(0, 0.5, 11),
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ensemble_training_duration_seconds",
			Help:    "Duration of full training runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		StrategiesTrained: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ensemble_strategies_trained",
			Help: "Number of strategies that trained successfully in the last run",
		}),
	}
}
