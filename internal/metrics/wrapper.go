package metrics

// MetricsWrapper adapts Metrics to the method set the scoring engine uses,
// so the ml package does not import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.MLPredictions.Inc()
}

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

func (w *MetricsWrapper) AttributionsInc() {
	w.m.Attributions.Inc()
}

func (w *MetricsWrapper) CohortSizeSet(v float64) {
	w.m.CohortSize.Set(v)
}

func (w *MetricsWrapper) CohortLatencyObserve(v float64) {
	w.m.CohortLatency.Observe(v)
}
