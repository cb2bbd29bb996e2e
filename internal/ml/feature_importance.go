package ml

import (
	"fmt"
	"math"
	"sort"

	"credit-scorer/internal/common"
	"credit-scorer/internal/features"

	"github.com/rs/zerolog/log"
)

// Attribution holds the positive-class contributions of one prediction,
// aligned with the feature schema.
type Attribution struct {
	Names    []string
	Values   []float64
	Baseline float64
}

// Signed returns the full, signed contribution vector in schema order.
func (a Attribution) Signed() features.Vector {
	return features.NewVector(a.Names, a.Values)
}

// Sum returns the total contribution. Together with Baseline it reproduces
// the model's raw output for the row.
func (a Attribution) Sum() float64 {
	var s float64
	for _, v := range a.Values {
		s += v
	}
	return s
}

// TopK returns the k features with the largest absolute contribution,
// ordered by decreasing magnitude. Values are magnitudes; ties keep schema
// order.
func (a Attribution) TopK(k int) features.Vector {
	order := make([]int, len(a.Values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return math.Abs(a.Values[order[i]]) > math.Abs(a.Values[order[j]])
	})

	k = min(max(k, 0), len(order))
	names := make([]string, k)
	values := make([]float64, k)
	for i, idx := range order[:k] {
		names[i] = a.Names[idx]
		values[i] = math.Abs(a.Values[idx])
	}
	return features.NewVector(names, values)
}

// Attributor explains single predictions through an Explainer. Only the
// positive (default) class attribution is ever exposed.
type Attributor struct {
	explainer Explainer
	schema    []string
	metrics   MetricsInterface
}

// NewAttributor binds an explainer to the feature schema.
func NewAttributor(explainer Explainer, schema []string, metrics MetricsInterface) (*Attributor, error) {
	if explainer == nil {
		return nil, fmt.Errorf("%w: attributor needs an explainer", common.ErrConfiguration)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: empty feature schema", common.ErrSchema)
	}
	return &Attributor{
		explainer: explainer,
		schema:    append([]string(nil), schema...),
		metrics:   metrics,
	}, nil
}

// Explain computes the positive-class attribution of a row.
func (a *Attributor) Explain(row []float64) (Attribution, error) {
	if len(row) != len(a.schema) {
		return Attribution{}, fmt.Errorf("%w: row has %d values, schema has %d", common.ErrSchema, len(row), len(a.schema))
	}

	c, err := a.explainer.Attribute(row)
	if err != nil {
		return Attribution{}, fmt.Errorf("attribute: %w", err)
	}

	values, baseline, err := positiveContributions(c)
	if err != nil {
		return Attribution{}, err
	}
	if len(values) != len(a.schema) {
		return Attribution{}, fmt.Errorf("%w: explainer returned %d contributions, schema has %d",
			common.ErrSchema, len(values), len(a.schema))
	}

	if a.metrics != nil {
		a.metrics.AttributionsInc()
	}
	log.Debug().Int("features", len(values)).Float64("baseline", baseline).Msg("Attribution computed")

	return Attribution{
		Names:    append([]string(nil), a.schema...),
		Values:   append([]float64(nil), values...),
		Baseline: baseline,
	}, nil
}

// positiveContributions selects the default-class vector: index 1 of a
// per-class list, or the single vector of a binary explainer.
func positiveContributions(c Contributions) ([]float64, float64, error) {
	idx := 0
	switch n := len(c.PerClass); {
	case n == 0:
		return nil, 0, fmt.Errorf("%w: explainer returned no contributions", common.ErrSchema)
	case n >= 2:
		idx = 1
	}

	var baseline float64
	if idx < len(c.Baselines) {
		baseline = c.Baselines[idx]
	}
	return c.PerClass[idx], baseline, nil
}
