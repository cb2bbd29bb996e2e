package scoring

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"credit-scorer/internal/cfg"
	"credit-scorer/internal/common"
	"credit-scorer/internal/features"
	"credit-scorer/internal/ml"
	"credit-scorer/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EXT_SOURCE_1 <= 0.2 adds 1.0 (20 clients) else -2.0 (80); AMT_CREDIT <=
// 500000 adds 0.2 else -0.1 (50 each).
const modelJSON = `{
  "num_class": 1,
  "num_tree_per_iteration": 1,
  "max_feature_idx": 1,
  "objective": "binary sigmoid:1",
  "feature_names": ["EXT_SOURCE_1", "AMT_CREDIT"],
  "tree_info": [
    {"tree_structure": {
      "split_feature": 0, "threshold": 0.2, "decision_type": "<=",
      "default_left": false, "missing_type": "NaN",
      "left_child": {"leaf_value": 1.0, "leaf_count": 20},
      "right_child": {"leaf_value": -2.0, "leaf_count": 80}}},
    {"tree_structure": {
      "split_feature": 1, "threshold": 500000, "decision_type": "<=",
      "default_left": true, "missing_type": "None",
      "left_child": {"leaf_value": 0.2, "leaf_count": 50},
      "right_child": {"leaf_value": -0.1, "leaf_count": 50}}}
  ]
}`

const tableCSV = `SK_ID_CURR,EXT_SOURCE_1,AMT_CREDIT,TARGET
100002,0.083,400000,1
100003,0.5,1300000,0
100004,0.15,600000,0
`

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func writeFixtures(t *testing.T, csv string) cfg.Settings {
	t.Helper()
	dir := t.TempDir()
	settings := cfg.Settings{
		ModelPath: filepath.Join(dir, "model.json"),
		DataPath:  filepath.Join(dir, "features.csv"),
	}
	require.NoError(t, os.WriteFile(settings.ModelPath, []byte(modelJSON), 0o644))
	require.NoError(t, os.WriteFile(settings.DataPath, []byte(csv), 0o644))
	return settings
}

func newTestService(t *testing.T, csv string) (*Service, *ml.MockMetrics) {
	t.Helper()
	snapshot, err := Load(writeFixtures(t, csv))
	require.NoError(t, err)

	metrics := &ml.MockMetrics{}
	svc, err := NewService(snapshot, metrics)
	require.NoError(t, err)
	return svc, metrics
}

func TestLoad_MissingArtifacts(t *testing.T) {
	settings := writeFixtures(t, tableCSV)

	missingModel := settings
	missingModel.ModelPath = filepath.Join(t.TempDir(), "absent.json")
	_, err := Load(missingModel)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	missingData := settings
	missingData.DataPath = filepath.Join(t.TempDir(), "absent.csv")
	_, err = Load(missingData)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestLoadTable_FromSnapshot(t *testing.T) {
	src, err := features.ReadCSV(strings.NewReader(tableCSV))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "features.db")
	store, err := storage.New(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveTable(src))
	require.NoError(t, store.Close())

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, src.IDs(), table.IDs())
	assert.Equal(t, src.Schema(), table.Schema())

	_, err = LoadTable(filepath.Join(t.TempDir(), "absent.db"))
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestNewService_SchemaMismatch(t *testing.T) {
	settings := writeFixtures(t, "id,AMT_CREDIT,EXT_SOURCE_1\n1,2,3\n")
	snapshot, err := Load(settings)
	require.NoError(t, err)

	_, err = NewService(snapshot, nil)
	assert.ErrorIs(t, err, common.ErrSchema)
}

func TestService_Score(t *testing.T) {
	svc, _ := newTestService(t, tableCSV)

	tests := []struct {
		id       int64
		raw      float64
		decision int
	}{
		{100002, 1.0 + 0.2, 1},
		{100003, -2.0 - 0.1, 0},
		{100004, 1.0 - 0.1, 1},
	}
	for _, tc := range tests {
		pred, err := svc.Score(tc.id)
		require.NoError(t, err)
		assert.InDelta(t, sigmoid(tc.raw), pred.Probability, 1e-12)
		assert.Equal(t, tc.decision, pred.Prediction)
		assert.Equal(t, ml.Decide(pred.Probability), pred.Prediction)
	}
}

func TestService_NotFoundBeforeInference(t *testing.T) {
	svc, metrics := newTestService(t, tableCSV)

	calls := []func() error{
		func() error { _, err := svc.Score(1); return err },
		func() error { _, err := svc.ClientData(1); return err },
		func() error { _, err := svc.ExplainTop(1); return err },
		func() error { _, err := svc.ExplainFull(1); return err },
		func() error { _, err := svc.CompareCohort(1); return err },
		func() error { _, err := svc.ClassProfile(1); return err },
	}
	for _, call := range calls {
		assert.ErrorIs(t, call(), common.ErrNotFound)
	}
	assert.Equal(t, 0, metrics.Predictions(), "no inference for unknown clients")
}

func TestService_ClientDataIsLabelStripped(t *testing.T) {
	svc, _ := newTestService(t, tableCSV)

	row, err := svc.ClientData(100002)
	require.NoError(t, err)
	assert.Equal(t, []string{"EXT_SOURCE_1", "AMT_CREDIT"}, row.Names())
	assert.Equal(t, []float64{0.083, 400000}, row.Values())

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.NotContains(t, string(data), common.OutcomeColumn)
}

func TestService_Explain(t *testing.T) {
	svc, _ := newTestService(t, tableCSV)

	full, err := svc.ExplainFull(100002)
	require.NoError(t, err)
	ext, _ := full.Get("EXT_SOURCE_1")
	amt, _ := full.Get("AMT_CREDIT")
	// expectations: 0.2*1 + 0.8*-2 = -1.4 and 0.5*0.2 + 0.5*-0.1 = 0.05
	assert.InDelta(t, 1.0-(-1.4), ext, 1e-12)
	assert.InDelta(t, 0.2-0.05, amt, 1e-12)

	top, err := svc.ExplainTop(100003)
	require.NoError(t, err)
	assert.Equal(t, []string{"EXT_SOURCE_1", "AMT_CREDIT"}, top.Names())
	for _, v := range top.Values() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestService_Cohort(t *testing.T) {
	svc, _ := newTestService(t, tableCSV)

	stat, err := svc.CohortMean()
	require.NoError(t, err)
	assert.Equal(t, 2, stat.Size)
	ext, _ := stat.Mean.Get("EXT_SOURCE_1")
	amt, _ := stat.Mean.Get("AMT_CREDIT")
	assert.InDelta(t, (0.083+0.15)/2, ext, 1e-12)
	assert.InDelta(t, 500000.0, amt, 1e-9)

	delta, err := svc.CompareCohort(100003)
	require.NoError(t, err)
	dExt, _ := delta.Get("EXT_SOURCE_1")
	dAmt, _ := delta.Get("AMT_CREDIT")
	assert.InDelta(t, 0.5-(0.083+0.15)/2, dExt, 1e-12)
	assert.InDelta(t, 1300000.0-500000.0, dAmt, 1e-9)
}

func TestService_ClassProfile(t *testing.T) {
	svc, _ := newTestService(t, tableCSV)

	profile, err := svc.ClassProfile(100003)
	require.NoError(t, err)
	assert.Equal(t, int64(100003), profile.ClientID)
	require.Len(t, profile.Features, 2)

	first := profile.Features[0]
	assert.Equal(t, "EXT_SOURCE_1", first.Feature)
	assert.Equal(t, ml.Stat(0.5), first.ClientValue)
	assert.Equal(t, 2, first.Class0.Count)
	assert.Equal(t, 1, first.Class1.Count)

	data, err := json.Marshal(profile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"client_value":0.5`)
	assert.Contains(t, string(data), `"class_1":{"count":1`)
}

func TestService_ClassProfileWithoutOutcome(t *testing.T) {
	svc, _ := newTestService(t, "SK_ID_CURR,EXT_SOURCE_1,AMT_CREDIT\n1,0.1,100\n")

	_, err := svc.ClassProfile(1)
	assert.ErrorIs(t, err, common.ErrOutcomeUnavailable)

	_, err = svc.ClassProfile(2)
	assert.ErrorIs(t, err, common.ErrNotFound, "unknown client is reported first")
}

func TestService_InfoAndListing(t *testing.T) {
	svc, _ := newTestService(t, tableCSV)

	assert.Equal(t, []int64{100002, 100003, 100004}, svc.ClientIDs())
	records := svc.AllData()
	require.Len(t, records, 3)
	assert.True(t, records[0].HasOutcome)

	info := svc.Info()
	assert.Equal(t, common.DecisionThreshold, info.Threshold)
	assert.Equal(t, "SK_ID_CURR", info.IDColumn)
	assert.Equal(t, 3, info.Clients)
	assert.Equal(t, 2, info.Features)
	require.NotNil(t, info.Model)
	assert.Equal(t, 2, info.Model.NumTrees)
}

func TestService_ConcurrentRequests(t *testing.T) {
	svc, _ := newTestService(t, tableCSV)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range svc.ClientIDs() {
				_, err := svc.Score(id)
				assert.NoError(t, err)
				_, err = svc.CompareCohort(id)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
