package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"credit-scorer/internal/common"

	"github.com/rs/zerolog/log"
)

// kZeroThreshold matches LightGBM's definition of a zero feature value.
const kZeroThreshold = 1e-35

type objectiveKind int

const (
	objectiveBinary objectiveKind = iota
	objectiveMulticlass
)

type missingType int

const (
	missingNone missingType = iota
	missingZero
	missingNaN
)

// ModelInfo describes a loaded ensemble.
type ModelInfo struct {
	Objective     string         `json:"objective"`
	NumClass      int            `json:"num_class"`
	NumTrees      int            `json:"num_trees"`
	AverageOutput bool           `json:"average_output"`
	Features      []string       `json:"features"`
	Metadata      *ModelMetadata `json:"metadata,omitempty"`
}

// Ensemble is a gradient-boosted tree ensemble loaded from a LightGBM
// dump_model() JSON document. It is immutable after loading and implements
// both Classifier and Explainer.
type Ensemble struct {
	features  []string
	trees     []tree
	groups    int // trees per boosting iteration, one per output class
	objective objectiveKind
	sigmoid   float64
	average   bool
	info      ModelInfo
}

type tree struct {
	nodes []treeNode
}

type treeNode struct {
	feature     int // -1 for leaves
	threshold   float64
	categories  map[int]struct{}
	defaultLeft bool
	missing     missingType
	left        int
	right       int
	value       float64
	cover       float64
}

// dump document layout, see LightGBM Booster.dump_model()
type dumpModel struct {
	Name                string     `json:"name"`
	Version             string     `json:"version"`
	NumClass            int        `json:"num_class"`
	NumTreePerIteration int        `json:"num_tree_per_iteration"`
	MaxFeatureIdx       int        `json:"max_feature_idx"`
	Objective           string     `json:"objective"`
	AverageOutput       bool       `json:"average_output"`
	FeatureNames        []string   `json:"feature_names"`
	TreeInfo            []dumpTree `json:"tree_info"`
}

type dumpTree struct {
	TreeIndex     int      `json:"tree_index"`
	NumLeaves     int      `json:"num_leaves"`
	TreeStructure dumpNode `json:"tree_structure"`
}

type dumpNode struct {
	SplitFeature *int            `json:"split_feature"`
	Threshold    json.RawMessage `json:"threshold"`
	DecisionType string          `json:"decision_type"`
	DefaultLeft  bool            `json:"default_left"`
	MissingType  string          `json:"missing_type"`
	LeftChild    *dumpNode       `json:"left_child"`
	RightChild   *dumpNode       `json:"right_child"`
	LeafValue    float64         `json:"leaf_value"`
	LeafCount    float64         `json:"leaf_count"`
}

// LoadEnsemble reads a model dump from disk. A missing, unreadable or
// unsupported model is a configuration error.
func LoadEnsemble(path string) (*Ensemble, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open model %s: %w", common.ErrConfiguration, path, err)
	}
	defer file.Close()

	e, err := ParseEnsemble(file)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}

	if md, err := loadModelMetadata(path); err == nil {
		e.info.Metadata = md
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("model_path", path).Msg("Failed to load model metadata")
	}

	log.Info().
		Str("model_path", path).
		Str("objective", e.info.Objective).
		Int("trees", len(e.trees)).
		Int("features", len(e.features)).
		Msg("Model loaded successfully")

	return e, nil
}

// ParseEnsemble decodes a model dump.
func ParseEnsemble(r io.Reader) (*Ensemble, error) {
	var dm dumpModel
	if err := json.NewDecoder(r).Decode(&dm); err != nil {
		return nil, fmt.Errorf("%w: decode model: %w", common.ErrConfiguration, err)
	}
	return newEnsemble(dm)
}

func newEnsemble(dm dumpModel) (*Ensemble, error) {
	if len(dm.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: model has no feature names", common.ErrConfiguration)
	}
	if dm.MaxFeatureIdx != 0 && dm.MaxFeatureIdx+1 != len(dm.FeatureNames) {
		return nil, fmt.Errorf("%w: max_feature_idx %d does not match %d feature names",
			common.ErrConfiguration, dm.MaxFeatureIdx, len(dm.FeatureNames))
	}

	e := &Ensemble{
		features: append([]string(nil), dm.FeatureNames...),
		groups:   max(dm.NumTreePerIteration, 1),
		sigmoid:  1,
		average:  dm.AverageOutput,
	}

	fields := strings.Fields(dm.Objective)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: model has no objective", common.ErrConfiguration)
	}
	switch fields[0] {
	case "binary", "cross_entropy", "xentropy":
		e.objective = objectiveBinary
		if e.groups != 1 {
			return nil, fmt.Errorf("%w: binary objective with %d trees per iteration", common.ErrConfiguration, e.groups)
		}
	case "multiclass", "softmax":
		e.objective = objectiveMulticlass
		if e.groups < 2 {
			return nil, fmt.Errorf("%w: multiclass objective with %d trees per iteration", common.ErrConfiguration, e.groups)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported objective %q", common.ErrConfiguration, fields[0])
	}
	for _, f := range fields[1:] {
		if v, ok := strings.CutPrefix(f, "sigmoid:"); ok {
			s, err := strconv.ParseFloat(v, 64)
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("%w: invalid sigmoid factor %q", common.ErrConfiguration, v)
			}
			e.sigmoid = s
		}
	}

	if len(dm.TreeInfo) == 0 || len(dm.TreeInfo)%e.groups != 0 {
		return nil, fmt.Errorf("%w: %d trees for %d classes", common.ErrConfiguration, len(dm.TreeInfo), e.groups)
	}

	e.trees = make([]tree, 0, len(dm.TreeInfo))
	for i, dt := range dm.TreeInfo {
		t := tree{}
		if _, err := t.flatten(&dt.TreeStructure, len(e.features)); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %w", common.ErrConfiguration, i, err)
		}
		e.trees = append(e.trees, t)
	}

	e.info = ModelInfo{
		Objective:     dm.Objective,
		NumClass:      e.numClasses(),
		NumTrees:      len(e.trees),
		AverageOutput: e.average,
		Features:      e.FeatureNames(),
	}

	return e, nil
}

// flatten appends the subtree rooted at dn and returns its node index. Leaf
// covers come from leaf_count; internal covers are the sum of their children.
func (t *tree) flatten(dn *dumpNode, numFeatures int) (int, error) {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{feature: -1})

	if dn.SplitFeature == nil {
		t.nodes[idx].value = dn.LeafValue
		t.nodes[idx].cover = dn.LeafCount
		return idx, nil
	}

	n := treeNode{
		feature:     *dn.SplitFeature,
		defaultLeft: dn.DefaultLeft,
	}
	if n.feature < 0 || n.feature >= numFeatures {
		return 0, fmt.Errorf("split feature %d out of range", n.feature)
	}
	if dn.LeftChild == nil || dn.RightChild == nil {
		return 0, fmt.Errorf("split on feature %d is missing a child", n.feature)
	}

	switch dn.MissingType {
	case "", "None":
		n.missing = missingNone
	case "Zero":
		n.missing = missingZero
	case "NaN":
		n.missing = missingNaN
	default:
		return 0, fmt.Errorf("unknown missing_type %q", dn.MissingType)
	}

	switch dn.DecisionType {
	case "<=", "":
		if err := json.Unmarshal(dn.Threshold, &n.threshold); err != nil {
			return 0, fmt.Errorf("numerical threshold: %w", err)
		}
	case "==":
		cats, err := parseCategories(dn.Threshold)
		if err != nil {
			return 0, err
		}
		n.categories = cats
	default:
		return 0, fmt.Errorf("unsupported decision_type %q", dn.DecisionType)
	}

	left, err := t.flatten(dn.LeftChild, numFeatures)
	if err != nil {
		return 0, err
	}
	right, err := t.flatten(dn.RightChild, numFeatures)
	if err != nil {
		return 0, err
	}
	n.left, n.right = left, right
	n.cover = t.nodes[left].cover + t.nodes[right].cover
	if n.cover <= 0 {
		return 0, fmt.Errorf("split on feature %d has no data counts", n.feature)
	}

	t.nodes[idx] = n
	return idx, nil
}

// parseCategories reads a categorical threshold such as "1||4||7".
func parseCategories(raw json.RawMessage) (map[int]struct{}, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// a single category may be dumped as a bare number
		var f float64
		if err2 := json.Unmarshal(raw, &f); err2 != nil {
			return nil, fmt.Errorf("categorical threshold: %w", err)
		}
		s = strconv.Itoa(int(f))
	}

	cats := make(map[int]struct{})
	for _, part := range strings.Split(s, "||") {
		c, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("categorical threshold %q: %w", s, err)
		}
		cats[c] = struct{}{}
	}
	return cats, nil
}

func (n *treeNode) isLeaf() bool { return n.feature < 0 }

// goesLeft applies LightGBM's numerical and categorical decision rules.
func (n *treeNode) goesLeft(fval float64) bool {
	if n.categories != nil {
		if math.IsNaN(fval) || fval < 0 {
			return false
		}
		_, ok := n.categories[int(fval)]
		return ok
	}

	if math.IsNaN(fval) && n.missing != missingNaN {
		fval = 0
	}
	if (n.missing == missingZero && fval >= -kZeroThreshold && fval <= kZeroThreshold) ||
		(n.missing == missingNaN && math.IsNaN(fval)) {
		return n.defaultLeft
	}
	return fval <= n.threshold
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for !t.nodes[i].isLeaf() {
		n := &t.nodes[i]
		if n.goesLeft(row[n.feature]) {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].value
}

// expectation is the cover-weighted mean leaf value of the subtree.
func (t *tree) expectation(i int) float64 {
	n := &t.nodes[i]
	if n.isLeaf() {
		return n.value
	}
	l, r := t.nodes[n.left].cover, t.nodes[n.right].cover
	return (l*t.expectation(n.left) + r*t.expectation(n.right)) / (l + r)
}

// FeatureNames implements Classifier.
func (e *Ensemble) FeatureNames() []string {
	return append([]string(nil), e.features...)
}

// Info returns a description of the model.
func (e *Ensemble) Info() ModelInfo {
	info := e.info
	info.Features = e.FeatureNames()
	return info
}

func (e *Ensemble) numClasses() int {
	if e.objective == objectiveBinary {
		return 2
	}
	return e.groups
}

// scale is the per-tree factor applied to leaf values.
func (e *Ensemble) scale() float64 {
	if e.average {
		return float64(e.groups) / float64(len(e.trees))
	}
	return 1
}

func (e *Ensemble) checkRow(row []float64) error {
	if len(row) != len(e.features) {
		return fmt.Errorf("%w: row has %d values, model expects %d", common.ErrSchema, len(row), len(e.features))
	}
	return nil
}

// RawOutput returns the untransformed margin of every output group: the
// log-odds for a binary model, one score per class otherwise.
func (e *Ensemble) RawOutput(row []float64) ([]float64, error) {
	if err := e.checkRow(row); err != nil {
		return nil, err
	}
	raw := make([]float64, e.groups)
	for i := range e.trees {
		raw[i%e.groups] += e.trees[i].predict(row)
	}
	s := e.scale()
	for k := range raw {
		raw[k] *= s
	}
	return raw, nil
}

// PredictProba implements Classifier.
func (e *Ensemble) PredictProba(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		raw, err := e.RawOutput(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = e.transform(raw)
	}
	return out, nil
}

func (e *Ensemble) transform(raw []float64) []float64 {
	if e.objective == objectiveBinary {
		p := 1 / (1 + math.Exp(-e.sigmoid*raw[0]))
		return []float64{1 - p, p}
	}

	// softmax
	hi := raw[0]
	for _, v := range raw[1:] {
		hi = math.Max(hi, v)
	}
	probs := make([]float64, len(raw))
	var sum float64
	for k, v := range raw {
		probs[k] = math.Exp(v - hi)
		sum += probs[k]
	}
	for k := range probs {
		probs[k] /= sum
	}
	return probs
}

// Attribute implements Explainer with exact path-dependent TreeSHAP on the
// raw margin. A binary model yields a single vector; a multi-class model
// yields one vector per class.
func (e *Ensemble) Attribute(row []float64) (Contributions, error) {
	if err := e.checkRow(row); err != nil {
		return Contributions{}, err
	}

	c := Contributions{
		PerClass:  make([][]float64, e.groups),
		Baselines: make([]float64, e.groups),
	}
	for k := range c.PerClass {
		c.PerClass[k] = make([]float64, len(e.features))
	}

	s := e.scale()
	for i := range e.trees {
		k := i % e.groups
		e.trees[i].shap(row, c.PerClass[k], s)
		c.Baselines[k] += e.trees[i].expectation(0) * s
	}
	return c, nil
}
