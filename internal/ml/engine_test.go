package ml

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"credit-scorer/internal/common"
	"credit-scorer/internal/features"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClassifier returns a fixed probability keyed by the first feature.
type fakeClassifier struct {
	names   []string
	byFirst map[float64]float64
	columns int
	seen    [][]float64
	mu      sync.Mutex
	err     error
}

func (f *fakeClassifier) FeatureNames() []string { return f.names }

func (f *fakeClassifier) PredictProba(rows [][]float64) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.seen = append(f.seen, rows...)
	f.mu.Unlock()

	out := make([][]float64, len(rows))
	for i, row := range rows {
		p := f.byFirst[row[0]]
		if f.columns == 1 {
			out[i] = []float64{p}
			continue
		}
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

type fakeExplainer struct {
	result Contributions
	err    error
}

func (f *fakeExplainer) Attribute([]float64) (Contributions, error) {
	return f.result, f.err
}

func ptr(v float64) *float64 { return &v }

func TestDecide_ThresholdConsistency(t *testing.T) {
	tests := []struct {
		p    float64
		want int
	}{
		{0, 0},
		{0.1999999, 0},
		{common.DecisionThreshold, 1},
		{0.2000001, 1},
		{0.7, 1},
		{1, 1},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Decide(tc.p), "p=%v", tc.p)
	}
}

func TestNewPredictor_SchemaMismatch(t *testing.T) {
	model := &fakeClassifier{names: []string{"a", "b"}}

	tests := []struct {
		name   string
		schema []string
	}{
		{"reordered", []string{"b", "a"}},
		{"missing", []string{"a"}},
		{"extra", []string{"a", "b", "c"}},
		{"renamed", []string{"a", "B"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPredictor(model, tc.schema, nil)
			assert.ErrorIs(t, err, common.ErrSchema)
		})
	}

	_, err := NewPredictor(nil, []string{"a"}, nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestPredictor_Predict(t *testing.T) {
	metrics := &MockMetrics{}
	model := &fakeClassifier{
		names:   []string{"a", "b"},
		byFirst: map[float64]float64{1: 0.05, 2: 0.2, 3: 0.93},
	}
	p, err := NewPredictor(model, []string{"a", "b"}, metrics)
	require.NoError(t, err)

	for first, prob := range model.byFirst {
		pred, err := p.Predict(42, []float64{first, 0})
		require.NoError(t, err)
		assert.Equal(t, int64(42), pred.ClientID)
		assert.Equal(t, prob, pred.Probability)
		assert.Equal(t, Decide(prob), pred.Prediction)
	}
	assert.Equal(t, 3, metrics.Predictions())
	assert.Equal(t, 0, metrics.Failures())
}

func TestPredictor_SingleColumnOutput(t *testing.T) {
	model := &fakeClassifier{names: []string{"a"}, byFirst: map[float64]float64{1: 0.6}, columns: 1}
	p, err := NewPredictor(model, []string{"a"}, nil)
	require.NoError(t, err)

	probas, err := p.PredictProba([][]float64{{1}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.6}, probas)
}

func TestPredictor_InvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		prob float64
	}{
		{"above one", 1.5},
		{"negative", -0.1},
		{"nan", math.NaN()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &MockMetrics{}
			model := &fakeClassifier{names: []string{"a"}, byFirst: map[float64]float64{1: tc.prob}}
			p, err := NewPredictor(model, []string{"a"}, metrics)
			require.NoError(t, err)

			_, err = p.Predict(1, []float64{1})
			assert.ErrorIs(t, err, common.ErrSchema)
			assert.Equal(t, 1, metrics.Failures())
		})
	}
}

func TestPredictor_RowWidthAndModelErrors(t *testing.T) {
	boom := errors.New("boom")
	model := &fakeClassifier{names: []string{"a", "b"}}
	p, err := NewPredictor(model, []string{"a", "b"}, nil)
	require.NoError(t, err)

	_, err = p.PredictProba([][]float64{{1, 2}, {1}})
	assert.ErrorIs(t, err, common.ErrSchema)
	assert.Empty(t, model.seen, "model must not run on a malformed batch")

	model.err = boom
	_, err = p.PredictProba([][]float64{{1, 2}})
	assert.ErrorIs(t, err, boom)
}

func TestPredictor_Concurrency(t *testing.T) {
	model := &fakeClassifier{names: []string{"a"}, byFirst: map[float64]float64{1: 0.3}}
	p, err := NewPredictor(model, []string{"a"}, &MockMetrics{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			pred, err := p.Predict(int64(i), []float64{1})
			assert.NoError(t, err)
			assert.Equal(t, 1, pred.Prediction)
		}()
	}
	wg.Wait()
}

func TestAttributor_SelectsPositiveClass(t *testing.T) {
	schema := []string{"a", "b"}

	tests := []struct {
		name     string
		result   Contributions
		values   []float64
		baseline float64
	}{
		{
			name:     "single vector",
			result:   Contributions{PerClass: [][]float64{{0.1, -0.2}}, Baselines: []float64{-1}},
			values:   []float64{0.1, -0.2},
			baseline: -1,
		},
		{
			name: "per-class list",
			result: Contributions{
				PerClass:  [][]float64{{-0.1, 0.2}, {0.1, -0.2}},
				Baselines: []float64{1, -1},
			},
			values:   []float64{0.1, -0.2},
			baseline: -1,
		},
		{
			name:   "list without baselines",
			result: Contributions{PerClass: [][]float64{{9, 9}, {0.3, 0.4}, {7, 7}}},
			values: []float64{0.3, 0.4},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &MockMetrics{}
			a, err := NewAttributor(&fakeExplainer{result: tc.result}, schema, metrics)
			require.NoError(t, err)

			attr, err := a.Explain([]float64{1, 2})
			require.NoError(t, err)
			assert.Equal(t, tc.values, attr.Values)
			assert.Equal(t, tc.baseline, attr.Baseline)
			assert.Equal(t, schema, attr.Signed().Names())
			assert.Equal(t, 1, metrics.attributions)
		})
	}
}

func TestAttributor_Errors(t *testing.T) {
	schema := []string{"a", "b"}

	a, err := NewAttributor(&fakeExplainer{result: Contributions{PerClass: [][]float64{{1}}}}, schema, nil)
	require.NoError(t, err)
	_, err = a.Explain([]float64{1, 2})
	assert.ErrorIs(t, err, common.ErrSchema, "contribution width must match the schema")

	_, err = a.Explain([]float64{1})
	assert.ErrorIs(t, err, common.ErrSchema)

	a, err = NewAttributor(&fakeExplainer{}, schema, nil)
	require.NoError(t, err)
	_, err = a.Explain([]float64{1, 2})
	assert.ErrorIs(t, err, common.ErrSchema)

	_, err = NewAttributor(nil, schema, nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestAttribution_TopK(t *testing.T) {
	attr := Attribution{
		Names:  []string{"a", "b", "c", "d", "e", "f", "g"},
		Values: []float64{0.1, -0.5, 0.5, 0, -0.3, 0.2, -0.05},
	}

	top := attr.TopK(common.TopAttributions)
	assert.Equal(t, []string{"b", "c", "e", "f", "a"}, top.Names())
	assert.Equal(t, []float64{0.5, 0.5, 0.3, 0.2, 0.1}, top.Values())

	// every entry is a schema feature with the magnitude of its signed value
	signed := attr.Signed()
	for i := 0; i < top.Len(); i++ {
		name, v := top.At(i)
		s, ok := signed.Get(name)
		require.True(t, ok)
		assert.Equal(t, math.Abs(s), v)
		if i > 0 {
			_, prev := top.At(i - 1)
			assert.GreaterOrEqual(t, prev, v)
		}
	}

	assert.Equal(t, 3, attr.TopK(3).Len())
	assert.Equal(t, 7, attr.TopK(50).Len())
	assert.Equal(t, 0, attr.TopK(-1).Len())
}

func TestAttributor_EnsembleIsAdditive(t *testing.T) {
	e := parseModel(t, binaryModelJSON)
	a, err := NewAttributor(e, e.FeatureNames(), nil)
	require.NoError(t, err)

	row := []float64{0.5, 2, 0}
	attr, err := a.Explain(row)
	require.NoError(t, err)

	raw, err := e.RawOutput(row)
	require.NoError(t, err)
	assert.InDelta(t, raw[0], attr.Sum()+attr.Baseline, 1e-9)
}

// A scores 0.5 and B scores 0.1: the cohort is {A} and B's delta is B - A.
func newCohortFixture(t *testing.T) (*Comparator, *features.Table, *fakeClassifier) {
	t.Helper()
	schema := []string{"income", "debt"}
	rows := []features.Row{
		{ID: 100, Values: []float64{50, 3}, Outcome: ptr(0)},
		{ID: 200, Values: []float64{20, math.NaN()}, Outcome: ptr(1)},
	}
	table, err := features.NewTable("SK_ID_CURR", schema, rows, true)
	require.NoError(t, err)

	model := &fakeClassifier{names: schema, byFirst: map[float64]float64{50: 0.5, 20: 0.1}}
	p, err := NewPredictor(model, schema, nil)
	require.NoError(t, err)
	c, err := NewComparator(p, &MockMetrics{})
	require.NoError(t, err)
	return c, table, model
}

func TestComparator_TwoClientExample(t *testing.T) {
	c, table, _ := newCohortFixture(t)

	stat, err := c.CohortMean(table)
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Size)
	assert.Equal(t, common.DecisionThreshold, stat.Threshold)
	assert.Equal(t, []string{"income", "debt"}, stat.Mean.Names())
	assert.Equal(t, []float64{50, 3}, stat.Mean.Values())

	b, err := table.Row(200)
	require.NoError(t, err)
	delta, err := c.Compare(b.Values, stat)
	require.NoError(t, err)
	want := []float64{20 - 50, math.NaN()}
	if diff := cmp.Diff(want, delta.Values(), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("delta mismatch (-want +got):\n%s", diff)
	}

	a, err := table.Row(100)
	require.NoError(t, err)
	delta, err = c.Compare(a.Values, stat)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, delta.Values())
}

func TestComparator_OutcomeNeverEntersInference(t *testing.T) {
	c, table, model := newCohortFixture(t)

	_, err := c.CohortMean(table)
	require.NoError(t, err)
	require.Len(t, model.seen, 2)
	for _, row := range model.seen {
		assert.Len(t, row, 2, "rows fed to the model carry only schema features")
	}
}

func TestComparator_MembershipIsProbabilityBased(t *testing.T) {
	schema := []string{"x"}
	rows := []features.Row{
		{ID: 1, Values: []float64{1}, Outcome: ptr(1)},
		{ID: 2, Values: []float64{2}, Outcome: ptr(0)},
		{ID: 3, Values: []float64{3}, Outcome: ptr(0)},
		{ID: 4, Values: []float64{math.NaN()}, Outcome: ptr(1)},
	}
	table, err := features.NewTable("", schema, rows, true)
	require.NoError(t, err)

	// labels say {1, 4}; the model says {2, 3}
	model := &fakeClassifier{names: schema, byFirst: map[float64]float64{1: 0.01, 2: 0.2, 3: 0.9}}
	p, err := NewPredictor(model, schema, nil)
	require.NoError(t, err)
	c, err := NewComparator(p, nil)
	require.NoError(t, err)

	stat, err := c.CohortMean(table)
	require.NoError(t, err)
	assert.Equal(t, 2, stat.Size)
	assert.Equal(t, []float64{2.5}, stat.Mean.Values())
}

func TestComparator_NaNSkippingAndEmptyCohort(t *testing.T) {
	schema := []string{"x", "y"}
	rows := []features.Row{
		{ID: 1, Values: []float64{1, math.NaN()}},
		{ID: 2, Values: []float64{2, math.NaN()}},
		{ID: 3, Values: []float64{3, 6}},
	}
	table, err := features.NewTable("", schema, rows, false)
	require.NoError(t, err)

	model := &fakeClassifier{names: schema, byFirst: map[float64]float64{1: 0.4, 2: 0.4, 3: 0.4}}
	p, err := NewPredictor(model, schema, nil)
	require.NoError(t, err)
	c, err := NewComparator(p, nil)
	require.NoError(t, err)

	stat, err := c.CohortMean(table)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 6}, stat.Mean.Values())

	model.byFirst = map[float64]float64{}
	stat, err = c.CohortMean(table)
	require.NoError(t, err)
	assert.Equal(t, 0, stat.Size)
	for _, v := range stat.Mean.Values() {
		assert.True(t, math.IsNaN(v))
	}
	data, err := stat.Mean.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"x":null,"y":null}`, string(data))
}

func TestComparator_CompareWidth(t *testing.T) {
	c, table, _ := newCohortFixture(t)
	stat, err := c.CohortMean(table)
	require.NoError(t, err)

	_, err = c.Compare([]float64{1}, stat)
	assert.ErrorIs(t, err, common.ErrSchema)
}

func TestComparator_ClassProfile(t *testing.T) {
	schema := []string{"x", "y"}
	rows := []features.Row{
		{ID: 1, Values: []float64{1, 0}, Outcome: ptr(0)},
		{ID: 2, Values: []float64{2, 0}, Outcome: ptr(0)},
		{ID: 3, Values: []float64{3, math.NaN()}, Outcome: ptr(0)},
		{ID: 4, Values: []float64{4, 0}, Outcome: ptr(0)},
		{ID: 5, Values: []float64{10, 5}, Outcome: ptr(1)},
		{ID: 6, Values: []float64{99, 99}},
	}
	table, err := features.NewTable("", schema, rows, true)
	require.NoError(t, err)

	c, _, _ := newCohortFixture(t)
	profile, err := c.ClassProfile(table, []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, profile.Features, 2)

	x := profile.Features[0]
	assert.Equal(t, "x", x.Feature)
	assert.Equal(t, 4, x.Class0.Count)
	assert.InDelta(t, 2.5, float64(x.Class0.Mean), 1e-12)
	assert.InDelta(t, 1.75, float64(x.Class0.Q1), 1e-12)
	assert.InDelta(t, 2.5, float64(x.Class0.Median), 1e-12)
	assert.InDelta(t, 3.25, float64(x.Class0.Q3), 1e-12)
	assert.Equal(t, Stat(1), x.Class0.Min)
	assert.Equal(t, Stat(4), x.Class0.Max)
	assert.Equal(t, 1, x.Class1.Count)
	assert.Equal(t, Stat(10), x.Class1.Median)

	y := profile.Features[1]
	assert.Equal(t, 3, y.Class0.Count, "missing cells are skipped")
}

func TestComparator_ClassProfileErrors(t *testing.T) {
	c, table, _ := newCohortFixture(t)

	_, err := c.ClassProfile(table, []string{"nope"})
	assert.ErrorIs(t, err, common.ErrSchema)

	unlabeled, err := features.NewTable("", []string{"income", "debt"},
		[]features.Row{{ID: 1, Values: []float64{1, 2}}}, false)
	require.NoError(t, err)
	_, err = c.ClassProfile(unlabeled, []string{"income"})
	assert.ErrorIs(t, err, common.ErrOutcomeUnavailable)
}

func TestBoxSummary_EmptyClassEncodesNull(t *testing.T) {
	data, err := summarize(nil).Mean.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = Stat(0.25).MarshalJSON()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "0.25"))
}
