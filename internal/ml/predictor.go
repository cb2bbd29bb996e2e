package ml

import (
	"fmt"
	"math"
	"time"

	"credit-scorer/internal/common"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the engine
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLPredictionScoresObserve(float64)
	AttributionsInc()
	CohortSizeSet(float64)
	CohortLatencyObserve(float64)
}

// Prediction is the scored decision for one client.
type Prediction struct {
	ClientID    int64   `json:"-"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

// Decide maps a default probability to the binary decision: 1 (probable
// default, reject) when p >= DecisionThreshold, 0 (accept) otherwise.
func Decide(p float64) int {
	if p >= common.DecisionThreshold {
		return 1
	}
	return 0
}

// Predictor is the inference engine. It holds an immutable reference to the
// trained model and is safe for concurrent use.
type Predictor struct {
	model   Classifier
	schema  []string
	metrics MetricsInterface
}

// NewPredictor binds a model to a feature schema. The schema must equal the
// model's training schema in names and order; a mismatch is a fatal schema
// error.
func NewPredictor(model Classifier, schema []string, metrics MetricsInterface) (*Predictor, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: predictor needs a model", common.ErrConfiguration)
	}
	if err := checkSchema(model.FeatureNames(), schema); err != nil {
		return nil, err
	}
	return &Predictor{
		model:   model,
		schema:  append([]string(nil), schema...),
		metrics: metrics,
	}, nil
}

func checkSchema(model, table []string) error {
	if len(model) != len(table) {
		return fmt.Errorf("%w: model expects %d features, table has %d", common.ErrSchema, len(model), len(table))
	}
	for i := range model {
		if model[i] != table[i] {
			return fmt.Errorf("%w: feature %d is %q in the model but %q in the table",
				common.ErrSchema, i, model[i], table[i])
		}
	}
	return nil
}

// Schema returns the input schema.
func (p *Predictor) Schema() []string {
	return append([]string(nil), p.schema...)
}

// PredictProba returns the positive-class (default) probability of each row.
func (p *Predictor) PredictProba(rows [][]float64) ([]float64, error) {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	for i, row := range rows {
		if len(row) != len(p.schema) {
			p.fail()
			return nil, fmt.Errorf("%w: row %d has %d values, schema has %d",
				common.ErrSchema, i, len(row), len(p.schema))
		}
	}

	probas, err := p.model.PredictProba(rows)
	if err != nil {
		p.fail()
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(probas) != len(rows) {
		p.fail()
		return nil, fmt.Errorf("%w: model returned %d results for %d rows", common.ErrSchema, len(probas), len(rows))
	}

	out := make([]float64, len(rows))
	for i, classes := range probas {
		prob, err := positiveClass(classes)
		if err != nil {
			p.fail()
			log.Error().Err(err).Int("row", i).Floats64("probabilities", classes).Msg("Invalid model output")
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = prob
	}

	if p.metrics != nil {
		for _, prob := range out {
			p.metrics.MLPredictionsInc()
			p.metrics.MLPredictionScoresObserve(prob)
		}
	}
	return out, nil
}

// Predict scores a single client row.
func (p *Predictor) Predict(id int64, row []float64) (Prediction, error) {
	probas, err := p.PredictProba([][]float64{row})
	if err != nil {
		return Prediction{}, fmt.Errorf("client %d: %w", id, err)
	}

	pred := Prediction{
		ClientID:    id,
		Probability: probas[0],
		Prediction:  Decide(probas[0]),
	}

	log.Debug().
		Int64("client_id", id).
		Float64("probability", pred.Probability).
		Int("prediction", pred.Prediction).
		Msg("Prediction successful")

	return pred, nil
}

func (p *Predictor) fail() {
	if p.metrics != nil {
		p.metrics.MLFailuresInc()
	}
}

// positiveClass picks the default-class column: index 1 for a two-or-more
// class output, the sole value otherwise.
func positiveClass(classes []float64) (float64, error) {
	var prob float64
	switch len(classes) {
	case 0:
		return 0, fmt.Errorf("%w: empty prediction result", common.ErrSchema)
	case 1:
		prob = classes[0]
	default:
		prob = classes[1]
	}
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return 0, fmt.Errorf("%w: invalid probability %v", common.ErrSchema, prob)
	}
	return prob, nil
}
