package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ju4n97/estimator/internal/backend"
	"github.com/ju4n97/estimator/internal/backend/linear"
	"github.com/ju4n97/estimator/internal/metrics"
	"github.com/ju4n97/estimator/internal/power"
	"github.com/ju4n97/estimator/internal/xfs"
)

// --- Mock types ---

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, req *power.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(source power.EnergySource, outputType power.OutputType) (*Handle, error) {
	args := m.Called(source, outputType)
	if h, ok := args.Get(0).(*Handle); ok {
		return h, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Helpers ---

func writeArtifact(t *testing.T, dir, trainer string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := `{"model_name":"` + trainer + `_0","trainer_name":"` + trainer + `","backend":"linear","components":["package"]}`
	weights := `{"All_Weights":{"Bias_Weight":1,"Categorical_Variables":{},"Numerical_Variables":{"cpu_time":{"scale":1,"mean":0,"variance":0,"weight":2}}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, backend.MetadataFilename), []byte(meta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(weights), 0o644))
}

func newRequest(t *testing.T, outputType, trainer string) *power.Request {
	t.Helper()

	data := `{"metrics":["cpu_time"],"values":[[10]],"output_type":"` + outputType +
		`","source":"rapl","system_features":[],"system_values":[],"trainer_name":"` + trainer + `","filter":""}`
	req, err := power.ParseRequest([]byte(data))
	require.NoError(t, err)
	return req
}

type fixture struct {
	locator *Locator
	remote  *MockResolver
	archive *MockResolver
	metrics *metrics.Metrics
	cache   *Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backends := backend.NewRegistry()
	require.NoError(t, backends.Register(linear.NewBackend()))

	f := &fixture{
		locator: NewLocator(t.TempDir()),
		remote:  new(MockResolver),
		archive: new(MockResolver),
		metrics: metrics.New(),
	}
	f.cache = NewCache(f.locator, NewLoader(f.locator, backends), f.remote, f.archive, WithMetrics(f.metrics))

	return f
}

// archiveProvides makes the archive resolver unpack a model for trainer.
func (f *fixture) archiveProvides(t *testing.T, trainer string) *mock.Call {
	path := f.locator.Path(power.SourceRAPL, power.OutputTypeAbsPower)
	return f.archive.On("Resolve", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { writeArtifact(t, path, trainer) }).
		Return(path, nil)
}

// --- Tests ---

func TestCache_ArchiveFallback(t *testing.T) {
	f := newFixture(t)
	f.remote.On("Resolve", mock.Anything, mock.Anything).Return("", nil).Once()
	f.archiveProvides(t, "SGDRegressorTrainer").Once()

	h, err := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)

	assert.Equal(t, "SGDRegressorTrainer", h.Trainer)
	assert.Equal(t, f.locator.Path(power.SourceRAPL, power.OutputTypeAbsPower), h.Path)

	powers, msg := h.Predict(newRequest(t, "AbsPower", "").Frame())
	assert.Empty(t, msg)
	assert.Equal(t, []float64{21}, powers["package"])

	cached, ok := f.cache.Get(power.OutputTypeAbsPower, power.SourceRAPL)
	require.True(t, ok)
	assert.Same(t, h, cached)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Resolutions.WithLabelValues(metrics.StageArchive, "AbsPower", "rapl-sysfs")))

	f.remote.AssertExpectations(t)
	f.archive.AssertExpectations(t)
}

func TestCache_RemoteFirst(t *testing.T) {
	f := newFixture(t)
	path := f.locator.Path(power.SourceRAPL, power.OutputTypeDynPower)
	f.remote.On("Resolve", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { writeArtifact(t, path, "XgboostFitTrainer") }).
		Return(path, nil).Once()

	h, err := f.cache.Resolve(context.Background(), newRequest(t, "DynPower", ""))
	require.NoError(t, err)
	assert.Equal(t, "XgboostFitTrainer", h.Trainer)

	f.archive.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestCache_RemoteErrorFallsBackToArchive(t *testing.T) {
	f := newFixture(t)
	f.remote.On("Resolve", mock.Anything, mock.Anything).Return("", errors.New("connection refused")).Once()
	f.archiveProvides(t, "SGDRegressorTrainer").Once()

	_, err := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)

	f.archive.AssertExpectations(t)
}

func TestCache_PreDownloadedArtifact(t *testing.T) {
	f := newFixture(t)
	writeArtifact(t, f.locator.Path(power.SourceRAPL, power.OutputTypeAbsPower), "SGDRegressorTrainer")

	h, err := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)
	assert.Equal(t, "SGDRegressorTrainer", h.Trainer)

	f.remote.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	f.archive.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Resolutions.WithLabelValues(metrics.StageLocal, "AbsPower", "rapl-sysfs")))
}

func TestCache_HitDoesNotTouchFilesystem(t *testing.T) {
	locator := NewLocator(t.TempDir())
	handle := NewHandle("m", "SGDRegressorTrainer", backend.PredictorFunc(func(*power.Frame) (map[string][]float64, string) {
		return map[string][]float64{}, ""
	}))

	loader := new(MockLoader)
	loader.On("Load", power.SourceRAPL, power.OutputTypeAbsPower).Return(handle, nil).Once()

	writeArtifact(t, locator.Path(power.SourceRAPL, power.OutputTypeAbsPower), "SGDRegressorTrainer")
	remote, archive := new(MockResolver), new(MockResolver)
	cache := NewCache(locator, loader, remote, archive)

	first, err := cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)

	// Removing the download directory must not matter for cached keys.
	require.NoError(t, os.RemoveAll(locator.Root()))

	for range 3 {
		got, err := cache.Resolve(context.Background(), newRequest(t, "AbsPower", "SGDRegressorTrainer"))
		require.NoError(t, err)
		assert.Same(t, first, got)
	}

	loader.AssertExpectations(t)
	remote.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	archive.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestCache_TrainerMismatchReplacesModel(t *testing.T) {
	f := newFixture(t)
	path := f.locator.Path(power.SourceRAPL, power.OutputTypeAbsPower)
	writeArtifact(t, path, "SGDRegressorTrainer")

	first, err := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)
	require.Equal(t, "SGDRegressorTrainer", first.Trainer)

	f.remote.On("Resolve", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			// The stale artifact must be gone before the model server is asked.
			assert.False(t, xfs.Exists(path))
			writeArtifact(t, path, "GradientBoostingRegressorTrainer")
		}).
		Return(path, nil).Once()

	second, err := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", "GradientBoostingRegressorTrainer"))
	require.NoError(t, err)
	assert.Equal(t, "GradientBoostingRegressorTrainer", second.Trainer)
	assert.NotSame(t, first, second)

	cached, _ := f.cache.Get(power.OutputTypeAbsPower, power.SourceRAPL)
	assert.Same(t, second, cached)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Evictions.WithLabelValues("trainer_mismatch")))
	f.remote.AssertExpectations(t)
}

func TestCache_TrainerMismatchUnsatisfiedKeepsPrior(t *testing.T) {
	f := newFixture(t)
	path := f.locator.Path(power.SourceRAPL, power.OutputTypeAbsPower)
	writeArtifact(t, path, "SGDRegressorTrainer")

	first, err := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)

	// The archive only has the trainer already in use.
	f.remote.On("Resolve", mock.Anything, mock.Anything).Return("", nil)
	f.archiveProvides(t, "SGDRegressorTrainer")

	_, err = f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", "KNeighborsRegressorTrainer"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTrainerMismatch)

	cached, ok := f.cache.Get(power.OutputTypeAbsPower, power.SourceRAPL)
	require.True(t, ok)
	assert.Same(t, first, cached)
}

func TestCache_UnresolvedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.remote.On("Resolve", mock.Anything, mock.Anything).Return("", nil).Twice()
	f.archive.On("Resolve", mock.Anything, mock.Anything).Return("", nil).Twice()

	_, err1 := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	_, err2 := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))

	require.Error(t, err1)
	require.Error(t, err2)
	assert.ErrorIs(t, err1, ErrUnresolved)
	assert.Equal(t, err1.Error(), err2.Error())

	_, ok := f.cache.Get(power.OutputTypeAbsPower, power.SourceRAPL)
	assert.False(t, ok)
	assert.Zero(t, f.cache.Len())

	f.remote.AssertExpectations(t)
	f.archive.AssertExpectations(t)
}

func TestCache_NilResolvers(t *testing.T) {
	locator := NewLocator(t.TempDir())
	cache := NewCache(locator, NewLoader(locator, backend.NewRegistry()), nil, nil)

	_, err := cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestCache_CorruptArtifactKeepsWorkingModel(t *testing.T) {
	locator := NewLocator(t.TempDir())
	working := NewHandle("m", "SGDRegressorTrainer", backend.PredictorFunc(func(*power.Frame) (map[string][]float64, string) {
		return nil, ""
	}))

	loader := new(MockLoader)
	loader.On("Load", power.SourceRAPL, power.OutputTypeAbsPower).Return(working, nil).Once()
	loader.On("Load", power.SourceRAPL, power.OutputTypeAbsPower).Return(nil, ErrCorrupt).Once()

	path := locator.Path(power.SourceRAPL, power.OutputTypeAbsPower)
	remote := new(MockResolver)
	remote.On("Resolve", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { require.NoError(t, os.MkdirAll(path, 0o755)) }).
		Return(path, nil)

	cache := NewCache(locator, loader, remote, nil)

	_, err := cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)

	_, err = cache.Resolve(context.Background(), newRequest(t, "AbsPower", "XgboostFitTrainer"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)

	cached, ok := cache.Get(power.OutputTypeAbsPower, power.SourceRAPL)
	require.True(t, ok)
	assert.Same(t, working, cached)
	loader.AssertExpectations(t)
}

func TestCache_UnusableHandleNotInstalled(t *testing.T) {
	locator := NewLocator(t.TempDir())
	writeArtifact(t, locator.Path(power.SourceRAPL, power.OutputTypeAbsPower), "t")

	loader := new(MockLoader)
	loader.On("Load", power.SourceRAPL, power.OutputTypeAbsPower).Return(NewHandle("m", "t", nil), nil)

	cache := NewCache(locator, loader, nil, nil)
	_, err := cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Zero(t, cache.Len())
}

func TestCache_EvictForcesFullResolution(t *testing.T) {
	f := newFixture(t)
	f.remote.On("Resolve", mock.Anything, mock.Anything).Return("", nil)
	f.archiveProvides(t, "SGDRegressorTrainer").Twice()

	_, err := f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)

	path := f.locator.Path(power.SourceRAPL, power.OutputTypeAbsPower)
	require.NoError(t, f.cache.Evict(power.SourceRAPL, power.OutputTypeAbsPower, "prediction_failed"))
	assert.False(t, xfs.Exists(path))
	assert.Zero(t, f.cache.Len())

	_, err = f.cache.Resolve(context.Background(), newRequest(t, "AbsPower", ""))
	require.NoError(t, err)

	f.archive.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Evictions.WithLabelValues("prediction_failed")))
}

func TestCache_RejectsKeysOutsideDownloadDir(t *testing.T) {
	root := t.TempDir()
	locator := NewLocator(filepath.Join(root, "models"))

	// A loadable artifact next to the download dir must never be loaded or removed.
	victim := filepath.Join(root, "victim", "AbsPower")
	writeArtifact(t, victim, "SGDRegressorTrainer")
	precious := filepath.Join(victim, "precious.txt")
	require.NoError(t, os.WriteFile(precious, []byte("keep"), 0o644))

	backends := backend.NewRegistry()
	require.NoError(t, backends.Register(linear.NewBackend()))
	remote, archive := new(MockResolver), new(MockResolver)
	cache := NewCache(locator, NewLoader(locator, backends), remote, archive)

	source := "../victim"
	req := &power.Request{Source: &source, OutputType: power.OutputTypeAbsPower}

	_, err := cache.Resolve(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Zero(t, cache.Len())

	err = cache.Evict(power.EnergySource(source), power.OutputTypeAbsPower, "prediction_failed")
	assert.ErrorIs(t, err, ErrInvalidKey)

	assert.FileExists(t, precious)
	remote.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	archive.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}
