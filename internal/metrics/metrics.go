// Package metrics provides Prometheus metrics collection for the credit-risk
// scoring service. It defines the request, inference, attribution and cohort
// metrics exposed via the Prometheus metrics endpoint.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scoring service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec   // Requests by route and status code
	RequestDuration *prometheus.HistogramVec // Request latency by route
	NotFoundTotal   prometheus.Counter       // Lookups of unknown client ids

	// Inference metrics
	MLPredictions      prometheus.Counter   // Total number of rows scored
	MLFailures         prometheus.Counter   // Total number of failed inference calls
	MLLatency          prometheus.Histogram // Inference latency per batch in seconds
	MLPredictionScores prometheus.Histogram // Distribution of default probabilities

	// Attribution and cohort metrics
	Attributions  prometheus.Counter   // Total number of attributions computed
	CohortSize    prometheus.Gauge     // Size of the last computed high-risk cohort
	CohortLatency prometheus.Histogram // Cohort recompute latency in seconds

	// Snapshot metrics
	TableRows  prometheus.Gauge // Clients in the loaded feature table
	ModelTrees prometheus.Gauge // Trees in the loaded model
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		NotFoundTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "client_not_found_total",
			Help: "Total number of requests for unknown client ids",
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of client rows scored",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of failed inference calls",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Inference latency per batch in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted default probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Attributions: factory.NewCounter(prometheus.CounterOpts{
			Name: "attributions_total",
			Help: "Total number of per-prediction attributions computed",
		}),
		CohortSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cohort_size",
			Help: "Number of clients in the last computed high-risk cohort",
		}),
		CohortLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cohort_latency_seconds",
			Help:    "High-risk cohort recompute latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		TableRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feature_table_rows",
			Help: "Number of clients in the loaded feature table",
		}),
		ModelTrees: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_trees",
			Help: "Number of trees in the loaded model",
		}),
	}
}

// ObserveRequest records one completed API request.
func (m *Metrics) ObserveRequest(route string, code int, seconds float64) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
