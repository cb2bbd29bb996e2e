// Package features holds the client feature table that the scoring engine
// reads from. A table is loaded once, validated, and never mutated afterwards,
// so it can be shared by any number of concurrent requests without locking.
//
// Two views are exposed: label-stripped rows, which are the only rows ever fed
// to the model, and label-present records used for aggregate analytics.
package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"credit-scorer/internal/common"
)

// DefaultIDColumn names the id column when the source leaves it unnamed.
const DefaultIDColumn = "index"

// Row is one client's precomputed features in schema order. Outcome is the
// ground-truth label when the table carries one and the value is present.
type Row struct {
	ID      int64
	Values  []float64
	Outcome *float64
}

// Table is an immutable, client-indexed set of rows sharing one schema.
type Table struct {
	idColumn   string
	schema     []string
	rows       []Row
	index      map[int64]int
	columns    map[string]int
	hasOutcome bool
}

// NewTable validates and copies rows into a Table. Ids must be unique, every
// row must match the schema width, and the schema must not contain the
// outcome column. Outcomes are dropped when hasOutcome is false.
func NewTable(idColumn string, schema []string, rows []Row, hasOutcome bool) (*Table, error) {
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: feature table has no feature columns", common.ErrSchema)
	}

	t := &Table{
		idColumn:   idColumn,
		schema:     make([]string, len(schema)),
		rows:       make([]Row, 0, len(rows)),
		index:      make(map[int64]int, len(rows)),
		columns:    make(map[string]int, len(schema)),
		hasOutcome: hasOutcome,
	}
	copy(t.schema, schema)

	for i, name := range schema {
		if name == common.OutcomeColumn || name == idColumn {
			return nil, fmt.Errorf("%w: reserved column %q in feature schema", common.ErrSchema, name)
		}
		if _, dup := t.columns[name]; dup {
			return nil, fmt.Errorf("%w: duplicate feature column %q", common.ErrSchema, name)
		}
		t.columns[name] = i
	}

	for _, r := range rows {
		if len(r.Values) != len(schema) {
			return nil, fmt.Errorf("%w: client %d has %d values, schema has %d",
				common.ErrSchema, r.ID, len(r.Values), len(schema))
		}
		if _, dup := t.index[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate client id %d", common.ErrSchema, r.ID)
		}

		row := Row{ID: r.ID, Values: make([]float64, len(r.Values))}
		copy(row.Values, r.Values)
		if hasOutcome && r.Outcome != nil {
			o := *r.Outcome
			row.Outcome = &o
		}

		t.index[r.ID] = len(t.rows)
		t.rows = append(t.rows, row)
	}

	return t, nil
}

// IDColumn returns the name of the id column.
func (t *Table) IDColumn() string { return t.idColumn }

// Schema returns the ordered feature names, outcome excluded.
func (t *Table) Schema() []string {
	out := make([]string, len(t.schema))
	copy(out, t.schema)
	return out
}

// Len returns the number of clients.
func (t *Table) Len() int { return len(t.rows) }

// HasOutcome reports whether the table was loaded with the outcome column.
func (t *Table) HasOutcome() bool { return t.hasOutcome }

// ColumnIndex returns the schema position of a feature.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.columns[name]
	return i, ok
}

// IDs returns client ids in load order.
func (t *Table) IDs() []int64 {
	ids := make([]int64, len(t.rows))
	for i, r := range t.rows {
		ids[i] = r.ID
	}
	return ids
}

// Row returns the label-stripped row for a client, or common.ErrNotFound.
func (t *Table) Row(id int64) (Row, error) {
	i, ok := t.index[id]
	if !ok {
		return Row{}, fmt.Errorf("client %d: %w", id, common.ErrNotFound)
	}
	return stripped(t.rows[i]), nil
}

// Outcome returns the label of a client when present.
func (t *Table) Outcome(id int64) (float64, bool, error) {
	i, ok := t.index[id]
	if !ok {
		return 0, false, fmt.Errorf("client %d: %w", id, common.ErrNotFound)
	}
	if o := t.rows[i].Outcome; o != nil {
		return *o, true, nil
	}
	return 0, false, nil
}

// Rows returns every row without the outcome, in load order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = stripped(r)
	}
	return out
}

// LabeledRows returns every row with its outcome, in load order.
func (t *Table) LabeledRows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = stripped(r)
		if r.Outcome != nil {
			o := *r.Outcome
			out[i].Outcome = &o
		}
	}
	return out
}

// Matrix returns the label-stripped feature values in load order, ready to be
// fed to a model.
func (t *Table) Matrix() [][]float64 {
	out := make([][]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = stripped(r).Values
	}
	return out
}

// Vector renders a row as an ordered name to value mapping.
func (t *Table) Vector(r Row) Vector {
	return NewVector(t.schema, r.Values)
}

// Records returns the full table with the id column and, when present, the
// outcome column.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.rows))
	for i, r := range t.rows {
		rec := Record{
			IDColumn:   t.idColumn,
			ID:         r.ID,
			Features:   t.Vector(r),
			HasOutcome: t.hasOutcome,
			Outcome:    math.NaN(),
		}
		if r.Outcome != nil {
			rec.Outcome = *r.Outcome
		}
		out[i] = rec
	}
	return out
}

// Record is one label-present row of the full table view.
type Record struct {
	IDColumn   string
	ID         int64
	Features   Vector
	HasOutcome bool
	Outcome    float64
}

// MarshalJSON writes the id column first, then features, then the outcome.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	key, err := json.Marshal(r.IDColumn)
	if err != nil {
		return nil, err
	}
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(r.ID, 10))

	for i := 0; i < r.Features.Len(); i++ {
		name, value := r.Features.At(i)
		buf.WriteByte(',')
		if err := writeEntry(&buf, name, value); err != nil {
			return nil, err
		}
	}

	if r.HasOutcome {
		buf.WriteByte(',')
		if err := writeEntry(&buf, common.OutcomeColumn, r.Outcome); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func stripped(r Row) Row {
	values := make([]float64, len(r.Values))
	copy(values, r.Values)
	return Row{ID: r.ID, Values: values}
}
