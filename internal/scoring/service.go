package scoring

import (
	"fmt"

	"credit-scorer/internal/common"
	"credit-scorer/internal/features"
	"credit-scorer/internal/ml"

	"github.com/rs/zerolog/log"
)

// Service answers every client-facing question about a snapshot. It holds no
// mutable state and is safe for concurrent use.
type Service struct {
	snapshot   *Snapshot
	predictor  *ml.Predictor
	attributor *ml.Attributor
	comparator *ml.Comparator
}

// NewService wires the engine components over a snapshot. A model whose
// schema differs from the table's is rejected here, before any request.
func NewService(snapshot *Snapshot, metrics ml.MetricsInterface) (*Service, error) {
	if snapshot == nil || snapshot.Table == nil || snapshot.Model == nil {
		return nil, fmt.Errorf("%w: incomplete snapshot", common.ErrConfiguration)
	}
	schema := snapshot.Table.Schema()

	predictor, err := ml.NewPredictor(snapshot.Model, schema, metrics)
	if err != nil {
		return nil, err
	}
	attributor, err := ml.NewAttributor(snapshot.Model, schema, metrics)
	if err != nil {
		return nil, err
	}
	comparator, err := ml.NewComparator(predictor, metrics)
	if err != nil {
		return nil, err
	}

	return &Service{
		snapshot:   snapshot,
		predictor:  predictor,
		attributor: attributor,
		comparator: comparator,
	}, nil
}

// Info describes the loaded snapshot.
type Info struct {
	Model      *ml.ModelInfo `json:"model,omitempty"`
	Threshold  float64       `json:"threshold"`
	IDColumn   string        `json:"id_column"`
	Clients    int           `json:"clients"`
	Features   int           `json:"features"`
	HasOutcome bool          `json:"has_outcome"`
}

// ProfileEntry is one feature of a client's class profile.
type ProfileEntry struct {
	ml.FeatureProfile
	ClientValue ml.Stat `json:"client_value"`
}

// ClientProfile places a client's most influential features against the
// distribution of each outcome class.
type ClientProfile struct {
	ClientID int64          `json:"client_id"`
	Features []ProfileEntry `json:"features"`
}

// ClientIDs returns every client id in table order.
func (s *Service) ClientIDs() []int64 {
	return s.snapshot.Table.IDs()
}

// AllData returns the full table, outcome included.
func (s *Service) AllData() []features.Record {
	return s.snapshot.Table.Records()
}

// Score predicts the default probability and decision of one client.
func (s *Service) Score(id int64) (ml.Prediction, error) {
	row, err := s.snapshot.Table.Row(id)
	if err != nil {
		return ml.Prediction{}, err
	}
	return s.predictor.Predict(id, row.Values)
}

// ClientData returns the label-stripped feature row of one client.
func (s *Service) ClientData(id int64) (features.Vector, error) {
	row, err := s.snapshot.Table.Row(id)
	if err != nil {
		return features.Vector{}, err
	}
	return s.snapshot.Table.Vector(row), nil
}

// ExplainTop returns the most influential features of one client's score by
// absolute contribution.
func (s *Service) ExplainTop(id int64) (features.Vector, error) {
	attr, err := s.explain(id)
	if err != nil {
		return features.Vector{}, err
	}
	return attr.TopK(common.TopAttributions), nil
}

// ExplainFull returns the signed contribution of every feature.
func (s *Service) ExplainFull(id int64) (features.Vector, error) {
	attr, err := s.explain(id)
	if err != nil {
		return features.Vector{}, err
	}
	return attr.Signed(), nil
}

func (s *Service) explain(id int64) (ml.Attribution, error) {
	row, err := s.snapshot.Table.Row(id)
	if err != nil {
		return ml.Attribution{}, err
	}
	attr, err := s.attributor.Explain(row.Values)
	if err != nil {
		return ml.Attribution{}, fmt.Errorf("client %d: %w", id, err)
	}
	return attr, nil
}

// CohortMean recomputes the high-risk cohort profile over the whole table.
func (s *Service) CohortMean() (ml.CohortStatistic, error) {
	return s.comparator.CohortMean(s.snapshot.Table)
}

// CompareCohort returns the client's signed difference to the high-risk
// cohort mean, feature by feature.
func (s *Service) CompareCohort(id int64) (features.Vector, error) {
	row, err := s.snapshot.Table.Row(id)
	if err != nil {
		return features.Vector{}, err
	}

	stat, err := s.comparator.CohortMean(s.snapshot.Table)
	if err != nil {
		return features.Vector{}, err
	}

	log.Debug().Int64("client_id", id).Int("cohort_size", stat.Size).Msg("Comparing client to cohort")
	return s.comparator.Compare(row.Values, stat)
}

// ClassProfile summarizes the client's top features across both outcome
// classes. It needs a table loaded with the outcome column.
func (s *Service) ClassProfile(id int64) (ClientProfile, error) {
	row, err := s.snapshot.Table.Row(id)
	if err != nil {
		return ClientProfile{}, err
	}
	if !s.snapshot.Table.HasOutcome() {
		return ClientProfile{}, fmt.Errorf("class profile: %w", common.ErrOutcomeUnavailable)
	}

	attr, err := s.attributor.Explain(row.Values)
	if err != nil {
		return ClientProfile{}, fmt.Errorf("client %d: %w", id, err)
	}
	names := attr.TopK(common.TopAttributions).Names()

	profile, err := s.comparator.ClassProfile(s.snapshot.Table, names)
	if err != nil {
		return ClientProfile{}, err
	}

	client := s.snapshot.Table.Vector(row)
	out := ClientProfile{ClientID: id, Features: make([]ProfileEntry, len(profile.Features))}
	for i, fp := range profile.Features {
		v, _ := client.Get(fp.Feature)
		out.Features[i] = ProfileEntry{FeatureProfile: fp, ClientValue: ml.Stat(v)}
	}
	return out, nil
}

// Info describes the snapshot and the decision rule.
func (s *Service) Info() Info {
	t := s.snapshot.Table
	info := Info{
		Threshold:  common.DecisionThreshold,
		IDColumn:   t.IDColumn(),
		Clients:    t.Len(),
		Features:   len(t.Schema()),
		HasOutcome: t.HasOutcome(),
	}
	if described, ok := s.snapshot.Model.(interface{ Info() ml.ModelInfo }); ok {
		mi := described.Info()
		info.Model = &mi
	}
	return info
}
