package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ju4n97/estimator/internal/logger"
	"github.com/ju4n97/estimator/internal/metrics"
	"github.com/ju4n97/estimator/internal/model"
	"github.com/ju4n97/estimator/internal/power"
)

// EvictionPredictionFailed labels evictions caused by a failed prediction.
const EvictionPredictionFailed = "prediction_failed"

// ModelCache resolves the model serving a request and evicts broken ones.
type ModelCache interface {
	Resolve(ctx context.Context, req *power.Request) (*model.Handle, error)
	Evict(source power.EnergySource, outputType power.OutputType, reason string) error
}

// Estimator turns raw requests into power estimates.
type Estimator struct {
	models  ModelCache
	metrics *metrics.Metrics
}

// NewEstimator creates a new Estimator service.
func NewEstimator(models ModelCache, m *metrics.Metrics) *Estimator {
	if m == nil {
		m = metrics.New()
	}
	return &Estimator{
		models:  models,
		metrics: m,
	}
}

// Handle parses raw, resolves a model and predicts. It never fails: every
// error is reported through the Msg of the returned response.
func (e *Estimator) Handle(ctx context.Context, raw []byte) power.Response {
	start := time.Now()
	resp, result := e.handle(ctx, raw)

	e.metrics.Requests.WithLabelValues(result).Inc()
	e.metrics.RequestDuration.Observe(time.Since(start).Seconds())

	return resp
}

func (e *Estimator) handle(ctx context.Context, raw []byte) (power.Response, string) {
	log := logger.FromContext(ctx)

	req, err := power.ParseRequest(raw)
	if err != nil {
		log.Warn("Failed to parse request", "error", err)
		return power.Failure(fmt.Sprintf("failed to handle request: %v", err)), metrics.ResultMalformed
	}

	if !req.OutputType.IsSupported() {
		err := fmt.Errorf("%w: %s", power.ErrUnsupportedOutputType, req.OutputType)
		log.Warn("Rejected request", "error", err)
		return power.Failure(fmt.Sprintf("output type %s is not supported", req.OutputType)), metrics.ResultUnsupported
	}

	source := req.EnergySource()
	log = log.With("output_type", req.OutputType, "source", source)

	handle, err := e.models.Resolve(ctx, req)
	if err != nil {
		log.Error("Failed to resolve model", "error", err)
		return power.Failure(err.Error()), metrics.ResultUnresolved
	}

	powers, msg := handle.Predict(req.Frame())
	if component, ok := power.NonFinite(powers); ok && msg == "" {
		msg = "non-finite power predicted for " + component
	}
	if msg != "" {
		log.Info("Model failed to predict; removed", "model", handle.Name, "msg", msg)
		if err := e.models.Evict(source, req.OutputType, EvictionPredictionFailed); err != nil {
			log.Error("Failed to evict model", "model", handle.Name, "error", err)
		}
		return power.Failure(msg), metrics.ResultPredictionFailed
	}

	log.Debug("Predicted power", "model", handle.Name, "rows", req.Frame().Len())

	return power.Success(powers), metrics.ResultSuccess
}
