package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	latencySum       float64
	attributions     int
	cohortSize       float64
	cohortRuns       int
	predictionScores []float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) AttributionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attributions++
}

func (m *MockMetrics) CohortSizeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cohortSize = v
}

func (m *MockMetrics) CohortLatencyObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cohortRuns++
}

// Predictions returns the number of scored rows.
func (m *MockMetrics) Predictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions
}

// Failures returns the number of failed inference calls.
func (m *MockMetrics) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}
