package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ju4n97/estimator/internal/backend"
	"github.com/ju4n97/estimator/internal/power"
)

// Loader deserializes artifacts found at the Locator path.
type Loader struct {
	locator  *Locator
	backends *backend.Registry
}

// NewLoader creates a loader resolving backends from the registry.
func NewLoader(locator *Locator, backends *backend.Registry) *Loader {
	return &Loader{
		locator:  locator,
		backends: backends,
	}
}

// Load reads the artifact for source and outputType. It returns an error
// wrapping ErrNotFound when nothing is on disk and ErrCorrupt when the
// artifact cannot be turned into a model.
func (l *Loader) Load(source power.EnergySource, outputType power.OutputType) (*Handle, error) {
	dir := l.locator.Path(source, outputType)

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorrupt, dir)
	}

	meta, err := backend.ReadMetadata(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if meta.OutputType != "" && power.OutputType(meta.OutputType) != outputType {
		return nil, fmt.Errorf("%w: %s holds a %s model", ErrCorrupt, dir, meta.OutputType)
	}
	if meta.Source != "" && power.NormalizeSource(&meta.Source) != source {
		return nil, fmt.Errorf("%w: %s holds a model for %s", ErrCorrupt, dir, meta.Source)
	}

	b, ok := l.backends.Get(meta.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrCorrupt, backend.ErrNotFound, meta.Backend)
	}

	predictor, err := b.Load(dir, meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	handle := NewHandle(meta.ModelName, meta.TrainerName, predictor)
	handle.Path = dir
	handle.Source = source
	handle.OutputType = outputType
	handle.Backend = meta.Backend
	handle.Features = meta.Features
	handle.MAE = meta.MAE

	return handle, nil
}
