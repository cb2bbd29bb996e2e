// Package ml provides the scoring engine of the credit-risk service: default
// probability inference, additive per-feature attribution and comparison of a
// client against the probability-defined risk cohort.
//
// The trained model is reached only through the Classifier and Explainer
// capability interfaces, so any tree ensemble or compatible model can back the
// engine. Ensemble is the bundled implementation for LightGBM model dumps.
package ml

// Classifier is the inference capability of a trained binary (or multi-class)
// model.
type Classifier interface {
	// FeatureNames returns the ordered input schema the model was trained on.
	FeatureNames() []string

	// PredictProba returns per-class probabilities for every input row, in the
	// same layout as a scikit-learn predict_proba call.
	PredictProba(rows [][]float64) ([][]float64, error)
}

// Explainer is the per-prediction attribution capability of a trained model.
type Explainer interface {
	// Attribute returns signed per-feature contributions for one row.
	Attribute(row []float64) (Contributions, error)
}

// Contributions is an explainer result. PerClass holds either a single vector
// (one entry) or one vector per class; Baselines is aligned with PerClass and
// holds the expected raw output each vector is measured against.
type Contributions struct {
	PerClass  [][]float64
	Baselines []float64
}
