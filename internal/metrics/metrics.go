package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estimator"

// Request results.
const (
	ResultSuccess          = "success"
	ResultMalformed        = "malformed"
	ResultUnsupported      = "unsupported_output_type"
	ResultUnresolved       = "unresolved"
	ResultPredictionFailed = "prediction_failed"
)

// Resolution stages.
const (
	StageCacheHit = "cache_hit"
	StageLocal    = "local"
	StageRemote   = "remote"
	StageArchive  = "archive"
	StageFailed   = "failed"
)

// Metrics holds the estimator collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	Requests        *prometheus.CounterVec
	Resolutions     *prometheus.CounterVec
	Evictions       *prometheus.CounterVec
	CachedModels    prometheus.Gauge
	RequestDuration prometheus.Histogram
}

// New creates and registers the estimator collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Power estimation requests by result.",
		}, []string{"result"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_resolutions_total",
			Help:      "Model resolutions by the stage that produced the model.",
		}, []string{"stage", "output_type", "source"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_evictions_total",
			Help:      "Models evicted after a failed prediction or a trainer mismatch.",
		}, []string{"reason"}),
		CachedModels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_models",
			Help:      "Models currently held in memory.",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent handling one request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.Resolutions,
		m.Evictions,
		m.CachedModels,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down metrics server", "error", err)
		}
	}()

	slog.Info("Serving metrics", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
