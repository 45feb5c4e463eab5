package linear

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ju4n97/estimator/internal/backend"
	"github.com/ju4n97/estimator/internal/power"
)

// Weights is the per-component weight file of a linear model.
type Weights struct {
	All struct {
		Bias        float64                                 `json:"Bias_Weight"`
		Categorical map[string]map[string]CategoricalWeight `json:"Categorical_Variables"`
		Numerical   map[string]NumericalWeight              `json:"Numerical_Variables"`
	} `json:"All_Weights"`
}

// NumericalWeight normalises a feature with mean/scale before weighting it.
type NumericalWeight struct {
	Scale    float64 `json:"scale"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Weight   float64 `json:"weight"`
}

// CategoricalWeight is the contribution of one category value.
type CategoricalWeight struct {
	Weight float64 `json:"weight"`
}

// Backend implements backend.Backend for linear regression artifacts.
type Backend struct{}

// NewBackend creates a new linear backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderLinear
}

// Load reads one <component>.json weight file per component.
func (b *Backend) Load(dir string, meta *backend.Metadata) (backend.Predictor, error) {
	model := &Model{weights: make(map[string]*Weights, len(meta.Components))}

	for _, component := range meta.Components {
		path := filepath.Join(dir, component+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read weights for %s: %w", component, err)
		}

		var w Weights
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode weights for %s: %w", component, err)
		}
		model.weights[component] = &w
	}

	return model, nil
}

// Model is a loaded linear model.
type Model struct {
	weights map[string]*Weights
}

// Predict computes bias + Σ weight·(x-mean)/scale + categorical weights for
// every row and component.
func (m *Model) Predict(frame *power.Frame) (map[string][]float64, string) {
	powers := make(map[string][]float64, len(m.weights))

	for component, w := range m.weights {
		values := make([]float64, frame.Len())
		for i := range values {
			values[i] = w.All.Bias
		}

		for feature, nw := range w.All.Numerical {
			column, ok := frame.Column(feature)
			if !ok {
				return nil, fmt.Sprintf("missing feature %s for %s", feature, component)
			}

			scale := nw.Scale
			if scale == 0 {
				scale = 1
			}
			for i, x := range column {
				if math.IsNaN(x) {
					return nil, fmt.Sprintf("feature %s is not numeric", feature)
				}
				values[i] += nw.Weight * (x - nw.Mean) / scale
			}
		}

		for feature, categories := range w.All.Categorical {
			label, ok := frame.Label(feature)
			if !ok {
				continue
			}
			if cw, ok := categories[label]; ok {
				for i := range values {
					values[i] += cw.Weight
				}
			}
		}

		powers[component] = values
	}

	return powers, ""
}
