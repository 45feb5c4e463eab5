package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataFilename is the descriptor every model artifact carries.
const MetadataFilename = "metadata.json"

// Metadata describes a model artifact.
type Metadata struct {
	ModelName   string          `json:"model_name"`
	TrainerName string          `json:"trainer_name"`
	Backend     BackendProvider `json:"backend,omitempty"`
	OutputType  string          `json:"output_type,omitempty"`
	Source      string          `json:"energy_source,omitempty"`
	Features    []string        `json:"features,omitempty"`
	Components  []string        `json:"components"`
	MAE         float64         `json:"mae,omitempty"`
}

// ReadMetadata reads and checks the descriptor in dir.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFilename))
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MetadataFilename, err)
	}

	if meta.ModelName == "" {
		return nil, fmt.Errorf("%s: model_name is empty", MetadataFilename)
	}
	if len(meta.Components) == 0 {
		return nil, fmt.Errorf("%s: no components", MetadataFilename)
	}
	if meta.Backend == "" {
		meta.Backend = BackendProviderLinear
	}

	return &meta, nil
}
