package model

import (
	"fmt"
	"time"

	"github.com/ju4n97/estimator/internal/backend"
	"github.com/ju4n97/estimator/internal/power"
)

// Handle is a loaded model. It is replaced wholesale on reload and never
// mutated once built.
type Handle struct {
	predictor  backend.Predictor
	LoadedAt   time.Time
	Name       string
	Trainer    string
	Path       string
	Source     power.EnergySource
	OutputType power.OutputType
	Backend    backend.BackendProvider
	Features   []string
	MAE        float64
}

// NewHandle wraps a predictor.
func NewHandle(name, trainer string, predictor backend.Predictor) *Handle {
	return &Handle{
		predictor: predictor,
		LoadedAt:  time.Now(),
		Name:      name,
		Trainer:   trainer,
	}
}

// Usable reports whether the handle has a prediction capability.
func (h *Handle) Usable() bool {
	return h != nil && h.predictor != nil
}

// Predict scores the frame. A non-empty message reports a failure.
func (h *Handle) Predict(frame *power.Frame) (map[string][]float64, string) {
	if !h.Usable() {
		return nil, "model has no prediction capability"
	}
	for _, feature := range h.Features {
		if _, ok := frame.Column(feature); !ok {
			return nil, fmt.Sprintf("missing feature %s for model %s", feature, h.Name)
		}
	}
	return h.predictor.Predict(frame)
}
