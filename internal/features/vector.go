package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Vector is an ordered mapping from feature name to value. It encodes to a
// JSON object that keeps the insertion order; non-finite values encode as null
// and null decodes back to NaN.
type Vector struct {
	names  []string
	values []float64
}

// NewVector copies names and values into a new Vector. Extra names or values
// beyond the shorter of the two slices are dropped.
func NewVector(names []string, values []float64) Vector {
	n := min(len(names), len(values))
	v := Vector{
		names:  make([]string, n),
		values: make([]float64, n),
	}
	copy(v.names, names)
	copy(v.values, values)
	return v
}

// Len returns the number of entries.
func (v Vector) Len() int { return len(v.names) }

// At returns the i-th entry.
func (v Vector) At(i int) (string, float64) { return v.names[i], v.values[i] }

// Names returns a copy of the entry names in order.
func (v Vector) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Values returns a copy of the entry values in order.
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// Get looks up a value by name.
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.names {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

// Map returns the entries as an unordered map.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.names))
	for i, n := range v.names {
		m[n] = v.values[i]
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (v Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range v.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeEntry(&buf, name, v.values[i]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vector) UnmarshalJSON(data []byte) error {
	v.names, v.values = nil, nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("vector: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("vector: expected key, got %v", tok)
		}

		var value *float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("vector: value for %q: %w", name, err)
		}

		v.names = append(v.names, name)
		if value == nil {
			v.values = append(v.values, math.NaN())
		} else {
			v.values = append(v.values, *value)
		}
	}

	_, err = dec.Token()
	return err
}

func writeEntry(buf *bytes.Buffer, name string, value float64) error {
	key, err := json.Marshal(name)
	if err != nil {
		return err
	}
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(appendNumber(nil, value))
	return nil
}

// appendNumber renders a float as a JSON number, or null when it is not finite.
func appendNumber(b []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, "null"...)
	}

	// same formatting rules as encoding/json
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b = strconv.AppendFloat(b, f, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}
