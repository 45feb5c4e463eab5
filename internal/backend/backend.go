package backend

import (
	"github.com/ju4n97/estimator/internal/power"
)

// BackendProvider is a string identifier for a predictor backend.
type BackendProvider string

const (
	// BackendProviderLinear scores frames with per-component linear weights.
	BackendProviderLinear BackendProvider = "linear"
)

// Backend turns an artifact directory into a Predictor.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Load deserializes the artifact in dir described by meta.
	Load(dir string, meta *Metadata) (Predictor, error)
}

// Predictor is the prediction capability of a loaded model.
type Predictor interface {
	// Predict returns, for each power component, one value per frame row.
	// A non-empty message means the model could not score the frame.
	Predict(frame *power.Frame) (map[string][]float64, string)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(frame *power.Frame) (map[string][]float64, string)

// Predict calls f(frame).
func (f PredictorFunc) Predict(frame *power.Frame) (map[string][]float64, string) {
	return f(frame)
}
