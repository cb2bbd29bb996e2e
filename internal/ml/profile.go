package ml

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"credit-scorer/internal/common"
	"credit-scorer/internal/features"
)

// Stat is a summary value that encodes NaN as JSON null.
type Stat float64

// MarshalJSON implements json.Marshaler.
func (s Stat) MarshalJSON() ([]byte, error) {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// BoxSummary describes the distribution of one feature within one outcome
// class. Missing cells are excluded from every statistic.
type BoxSummary struct {
	Count  int  `json:"count"`
	Mean   Stat `json:"mean"`
	Min    Stat `json:"min"`
	Q1     Stat `json:"q1"`
	Median Stat `json:"median"`
	Q3     Stat `json:"q3"`
	Max    Stat `json:"max"`
}

// FeatureProfile compares one feature across the two outcome classes.
type FeatureProfile struct {
	Feature string     `json:"feature"`
	Class0  BoxSummary `json:"class_0"`
	Class1  BoxSummary `json:"class_1"`
}

// ClassProfile is the label-based distribution of the requested features.
type ClassProfile struct {
	Features []FeatureProfile `json:"features"`
}

// ClassProfile summarizes each named feature separately for outcome 0 and
// outcome 1 clients. Rows without an outcome value are ignored. The table
// must carry the outcome column.
func (c *Comparator) ClassProfile(table *features.Table, names []string) (ClassProfile, error) {
	if !table.HasOutcome() {
		return ClassProfile{}, fmt.Errorf("class profile: %w", common.ErrOutcomeUnavailable)
	}

	cols := make([]int, len(names))
	for i, name := range names {
		idx, ok := table.ColumnIndex(name)
		if !ok {
			return ClassProfile{}, fmt.Errorf("%w: unknown feature %q", common.ErrSchema, name)
		}
		cols[i] = idx
	}

	rows := table.LabeledRows()
	profile := ClassProfile{Features: make([]FeatureProfile, len(names))}
	for i, name := range names {
		var neg, pos []float64
		for _, r := range rows {
			if r.Outcome == nil {
				continue
			}
			v := r.Values[cols[i]]
			if math.IsNaN(v) {
				continue
			}
			switch *r.Outcome {
			case 0:
				neg = append(neg, v)
			case 1:
				pos = append(pos, v)
			}
		}
		profile.Features[i] = FeatureProfile{
			Feature: name,
			Class0:  summarize(neg),
			Class1:  summarize(pos),
		}
	}
	return profile, nil
}

func summarize(xs []float64) BoxSummary {
	if len(xs) == 0 {
		nan := Stat(math.NaN())
		return BoxSummary{Mean: nan, Min: nan, Q1: nan, Median: nan, Q3: nan, Max: nan}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return BoxSummary{
		Count:  len(sorted),
		Mean:   Stat(sum / float64(len(sorted))),
		Min:    Stat(sorted[0]),
		Q1:     Stat(quantile(sorted, 0.25)),
		Median: Stat(quantile(sorted, 0.5)),
		Q3:     Stat(quantile(sorted, 0.75)),
		Max:    Stat(sorted[len(sorted)-1]),
	}
}

// quantile interpolates linearly between the closest ranks of sorted data.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
