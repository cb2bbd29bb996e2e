package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"credit-scorer/internal/common"

	"github.com/rs/zerolog/log"
)

// LoadCSV reads a feature table from a CSV file. The first column holds the
// client id; a column named TARGET holds the outcome. A missing or unreadable
// file is a configuration error.
func LoadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open feature table %s: %w", common.ErrConfiguration, path, err)
	}
	defer file.Close()

	table, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("read feature table %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Int("clients", table.Len()).
		Int("features", len(table.schema)).
		Bool("has_outcome", table.HasOutcome()).
		Msg("Feature table loaded")

	return table, nil
}

// ReadCSV parses a feature table. Empty cells and "nan" parse as NaN.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty feature table", common.ErrSchema)
		}
		return nil, fmt.Errorf("%w: read header: %w", common.ErrSchema, err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: header needs an id column and at least one feature", common.ErrSchema)
	}

	idColumn := strings.TrimSpace(strings.TrimPrefix(header[0], "\ufeff"))
	outcomeIdx := -1
	schema := make([]string, 0, len(header)-1)
	featureIdx := make([]int, 0, len(header)-1)
	for i, col := range header[1:] {
		col = strings.TrimSpace(col)
		if col == common.OutcomeColumn {
			outcomeIdx = i + 1
			continue
		}
		schema = append(schema, col)
		featureIdx = append(featureIdx, i+1)
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", common.ErrSchema, line, err)
		}

		id, err := parseID(record[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", common.ErrSchema, line, err)
		}

		row := Row{ID: id, Values: make([]float64, len(featureIdx))}
		for j, idx := range featureIdx {
			v, err := parseCell(record[idx])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %q: %w", common.ErrSchema, line, header[idx], err)
			}
			row.Values[j] = v
		}

		if outcomeIdx >= 0 {
			v, err := parseCell(record[outcomeIdx])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %q: %w", common.ErrSchema, line, common.OutcomeColumn, err)
			}
			if !math.IsNaN(v) {
				row.Outcome = &v
			}
		}

		rows = append(rows, row)
	}

	return NewTable(idColumn, schema, rows, outcomeIdx >= 0)
}

func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	// ids exported as floats ("100001.0")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid client id %q", s)
	}
	return int64(f), nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return math.NaN(), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
