package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ju4n97/estimator/internal/metrics"
	"github.com/ju4n97/estimator/internal/power"
	"github.com/ju4n97/estimator/internal/xfs"
)

// ArtifactLoader turns the artifact on disk into a Handle.
type ArtifactLoader interface {
	Load(source power.EnergySource, outputType power.OutputType) (*Handle, error)
}

// Resolver places an artifact for the request at its Locator path and
// returns that path. An empty path means the resolver has nothing to offer.
type Resolver interface {
	Resolve(ctx context.Context, req *power.Request) (string, error)
}

// Cache holds one loaded model per output type and energy source.
//
// All resolutions run under a single mutex, so at most one reload per key
// is ever in flight. Handles are never mutated, so a prediction running on
// a handle that gets replaced keeps working on its own copy.
type Cache struct {
	entries map[power.OutputType]map[power.EnergySource]*Handle
	locator *Locator
	loader  ArtifactLoader
	remote  Resolver
	archive Resolver
	metrics *metrics.Metrics
	mu      sync.Mutex
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMetrics records resolutions and evictions in m.
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates an empty cache. remote and archive may be nil.
func NewCache(locator *Locator, loader ArtifactLoader, remote, archive Resolver, opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[power.OutputType]map[power.EnergySource]*Handle),
		locator: locator,
		loader:  loader,
		remote:  remote,
		archive: archive,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	return c
}

// Resolve returns the model serving the request, loading it first if no
// model is cached for the key or the cached one was produced by a trainer
// other than the one requested.
func (c *Cache) Resolve(ctx context.Context, req *power.Request) (*Handle, error) {
	source := req.EnergySource()
	outputType := req.OutputType

	if err := c.locator.Check(source, outputType); err != nil {
		return nil, fmt.Errorf("%w for %s (%s): %w", ErrUnresolved, outputType, source, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	byType, ok := c.entries[outputType]
	if !ok {
		byType = make(map[power.EnergySource]*Handle)
		c.entries[outputType] = byType
	}

	current, exists := byType[source]
	mismatch := req.TrainerName != "" && exists && current.Trainer != req.TrainerName
	if mismatch {
		slog.Info("Trying to obtain the requested trainer",
			"trainer", req.TrainerName,
			"current", current.Trainer,
			"output_type", outputType,
			"source", source)
	}

	if exists && !mismatch {
		c.metrics.Resolutions.WithLabelValues(metrics.StageCacheHit, string(outputType), string(source)).Inc()
		return current, nil
	}

	path := c.locator.Path(source, outputType)
	if mismatch && xfs.Exists(path) {
		if err := xfs.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove stale model %s: %w", path, err)
		}
		c.metrics.Evictions.WithLabelValues("trainer_mismatch").Inc()
		slog.Info("Removed model produced by another trainer", "path", path, "trainer", current.Trainer)
	}

	stage := metrics.StageLocal
	if !xfs.Exists(path) {
		var err error
		stage, err = c.fetch(ctx, req, path)
		if err != nil {
			c.metrics.Resolutions.WithLabelValues(metrics.StageFailed, string(outputType), string(source)).Inc()
			return nil, err
		}
	}

	handle, err := c.loader.Load(source, outputType)
	if err == nil && !handle.Usable() {
		err = fmt.Errorf("%w: no prediction capability", ErrCorrupt)
	}
	if err == nil && mismatch && handle.Trainer != req.TrainerName {
		err = fmt.Errorf("%w: want %s, got %s", ErrTrainerMismatch, req.TrainerName, handle.Trainer)
	}
	if err != nil {
		c.metrics.Resolutions.WithLabelValues(metrics.StageFailed, string(outputType), string(source)).Inc()
		slog.Error("Failed to load model", "output_type", outputType, "source", source, "path", path, "error", err)
		return nil, fmt.Errorf("%w for %s (%s): %w", ErrUnresolved, outputType, source, err)
	}

	byType[source] = handle
	c.metrics.Resolutions.WithLabelValues(stage, string(outputType), string(source)).Inc()
	c.metrics.CachedModels.Set(float64(c.countLocked()))
	slog.Info("Set model",
		"model", handle.Name,
		"trainer", handle.Trainer,
		"output_type", outputType,
		"source", source,
		"mae", handle.MAE,
		"stage", stage)

	return handle, nil
}

// fetch asks the remote resolver and then the archive for an artifact.
func (c *Cache) fetch(ctx context.Context, req *power.Request, path string) (string, error) {
	outputType, source := req.OutputType, req.EnergySource()

	if c.remote != nil {
		resolved, err := c.remote.Resolve(ctx, req)
		if err != nil {
			slog.Warn("Model server could not provide a model", "output_type", outputType, "source", source, "error", err)
		} else if resolved != "" {
			slog.Info("Load model from model server", "path", resolved)
			return metrics.StageRemote, nil
		}
	}

	if c.archive != nil {
		resolved, err := c.archive.Resolve(ctx, req)
		if err != nil {
			slog.Warn("No archived model available", "output_type", outputType, "source", source, "error", err)
		} else if resolved != "" {
			slog.Info("Load model from config", "path", resolved)
			return metrics.StageArchive, nil
		}
	}

	err := fmt.Errorf("%w for %s (%s): no model on disk at %s, from the model server or in the archive",
		ErrUnresolved, outputType, source, path)
	slog.Error("Failed to get model", "output_type", outputType, "source", source, "error", err)

	return "", err
}

// Evict removes the artifact on disk and the in-memory model for the key,
// so the next request for it goes through full resolution again.
func (c *Cache) Evict(source power.EnergySource, outputType power.OutputType, reason string) error {
	if err := c.locator.Check(source, outputType); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if byType, ok := c.entries[outputType]; ok {
		delete(byType, source)
	}
	c.metrics.CachedModels.Set(float64(c.countLocked()))
	c.metrics.Evictions.WithLabelValues(reason).Inc()

	path := c.locator.Path(source, outputType)
	if err := xfs.RemoveAll(path); err != nil {
		return fmt.Errorf("remove model %s: %w", path, err)
	}

	return nil
}

// Get returns the cached model for the key without resolving it.
func (c *Cache) Get(outputType power.OutputType, source power.EnergySource) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.entries[outputType][source]
	return h, ok
}

// Len returns the number of cached models.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.countLocked()
}

func (c *Cache) countLocked() int {
	n := 0
	for _, byType := range c.entries {
		n += len(byType)
	}
	return n
}
