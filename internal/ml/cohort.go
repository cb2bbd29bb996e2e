package ml

import (
	"fmt"
	"math"
	"time"

	"credit-scorer/internal/common"
	"credit-scorer/internal/features"

	"github.com/rs/zerolog/log"
)

// CohortStatistic is the mean feature profile of the high-risk cohort: every
// client whose predicted default probability reaches DecisionThreshold.
type CohortStatistic struct {
	Mean      features.Vector
	Size      int
	Threshold float64
}

// Comparator positions clients against the high-risk cohort. Membership is
// decided by the model's probability, never by the outcome label.
type Comparator struct {
	predictor *Predictor
	metrics   MetricsInterface
}

// NewComparator creates a comparator over an inference engine.
func NewComparator(predictor *Predictor, metrics MetricsInterface) (*Comparator, error) {
	if predictor == nil {
		return nil, fmt.Errorf("%w: comparator needs a predictor", common.ErrConfiguration)
	}
	return &Comparator{predictor: predictor, metrics: metrics}, nil
}

// CohortMean scores every row of the table and averages each feature over the
// cohort, skipping missing cells. A feature with no observed value in the
// cohort (or an empty cohort) has a NaN mean.
func (c *Comparator) CohortMean(table *features.Table) (CohortStatistic, error) {
	start := time.Now()

	matrix := table.Matrix()
	probas, err := c.predictor.PredictProba(matrix)
	if err != nil {
		return CohortStatistic{}, fmt.Errorf("cohort inference: %w", err)
	}

	schema := table.Schema()
	sums := make([]float64, len(schema))
	counts := make([]int, len(schema))
	size := 0
	for i, row := range matrix {
		if probas[i] < common.DecisionThreshold {
			continue
		}
		size++
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			sums[j] += v
			counts[j]++
		}
	}

	means := make([]float64, len(schema))
	for j := range means {
		if counts[j] == 0 {
			means[j] = math.NaN()
			continue
		}
		means[j] = sums[j] / float64(counts[j])
	}

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.CohortSizeSet(float64(size))
		c.metrics.CohortLatencyObserve(elapsed.Seconds())
	}
	if size == 0 {
		log.Warn().Int("rows", len(matrix)).Msg("High-risk cohort is empty")
	}
	log.Debug().Int("cohort_size", size).Int("rows", len(matrix)).Dur("latency", elapsed).Msg("Cohort mean computed")

	return CohortStatistic{
		Mean:      features.NewVector(schema, means),
		Size:      size,
		Threshold: common.DecisionThreshold,
	}, nil
}

// Compare returns row[f] - mean[f] for every feature of the statistic. A
// missing value on either side yields NaN.
func (c *Comparator) Compare(row []float64, stat CohortStatistic) (features.Vector, error) {
	if len(row) != stat.Mean.Len() {
		return features.Vector{}, fmt.Errorf("%w: row has %d values, cohort profile has %d",
			common.ErrSchema, len(row), stat.Mean.Len())
	}
	means := stat.Mean.Values()
	delta := make([]float64, len(row))
	for i := range row {
		delta[i] = row[i] - means[i]
	}
	return features.NewVector(stat.Mean.Names(), delta), nil
}
