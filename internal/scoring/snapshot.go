// Package scoring composes the feature table and the trained model into the
// operations served by the API and the command line.
package scoring

import (
	"fmt"
	"path/filepath"
	"strings"

	"credit-scorer/internal/cfg"
	"credit-scorer/internal/features"
	"credit-scorer/internal/ml"
	"credit-scorer/internal/storage"

	"github.com/rs/zerolog/log"
)

// Model is a trained model offering both capabilities the engine needs.
type Model interface {
	ml.Classifier
	ml.Explainer
}

// Snapshot is the process-wide state: one model and one feature table, both
// immutable after Load.
type Snapshot struct {
	Table *features.Table
	Model Model
}

// Load reads the model and the feature table named by the settings. Any
// failure is fatal for the caller.
func Load(settings cfg.Settings) (*Snapshot, error) {
	model, err := ml.LoadEnsemble(settings.ModelPath)
	if err != nil {
		return nil, err
	}

	table, err := LoadTable(settings.DataPath)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model_path", settings.ModelPath).
		Str("data_path", settings.DataPath).
		Int("clients", table.Len()).
		Msg("Snapshot loaded")

	return &Snapshot{Table: table, Model: model}, nil
}

// LoadTable reads a feature table from a CSV file or from a BoltDB snapshot
// (.db or .bolt).
func LoadTable(path string) (*features.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".bolt":
		store, err := storage.Open(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		table, err := store.LoadTable()
		if err != nil {
			return nil, fmt.Errorf("load feature snapshot: %w", err)
		}
		return table, nil
	default:
		return features.LoadCSV(path)
	}
}
