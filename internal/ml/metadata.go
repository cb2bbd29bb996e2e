package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ModelMetadata is the optional training sidecar stored next to a model.
type ModelMetadata struct {
	Version       string    `json:"version"`
	TrainedAt     time.Time `json:"trained_at"`
	AUC           float64   `json:"auc"`
	TrainingRows  int       `json:"training_rows"`
	ValidationAUC float64   `json:"validation_auc"`
}

// loadModelMetadata reads model_metadata.json from the model directory, or
// the newest model_metadata_*.json when the primary file is absent.
func loadModelMetadata(modelPath string) (*ModelMetadata, error) {
	dir := filepath.Dir(modelPath)
	primary := filepath.Join(dir, "model_metadata.json")

	md, err := decodeMetadata(primary)
	if err == nil || !os.IsNotExist(err) {
		return md, err
	}

	matches, globErr := filepath.Glob(filepath.Join(dir, "model_metadata_*.json"))
	if globErr != nil || len(matches) == 0 {
		return nil, err
	}
	sort.Strings(matches)
	return decodeMetadata(matches[len(matches)-1])
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &md, nil
}
