package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ju4n97/estimator/internal/model"
	"github.com/ju4n97/estimator/internal/power"
	"github.com/ju4n97/estimator/internal/xfs"
)

// ModelServerOptions configures the remote model server.
type ModelServerOptions struct {
	URL     string
	Path    string
	Enabled bool
	Timeout time.Duration
	Retry   RetryPolicy
}

// modelRequest is the body posted to the model server.
type modelRequest struct {
	Metrics        []string `json:"metrics"`
	OutputType     string   `json:"output_type"`
	Source         string   `json:"source"`
	Filter         string   `json:"filter"`
	TrainerName    string   `json:"trainer_name"`
	SystemFeatures []string `json:"system_features"`
}

// Remote pulls model archives from a model server and unpacks them at the
// Locator path.
type Remote struct {
	locator *model.Locator
	client  *http.Client
	options atomic.Pointer[ModelServerOptions]
}

// NewRemote creates a remote resolver.
func NewRemote(locator *model.Locator, opts ModelServerOptions) *Remote {
	r := &Remote{
		locator: locator,
		client:  &http.Client{},
	}
	r.Update(opts)

	return r
}

// Update swaps the model server options, e.g. after a config reload.
func (r *Remote) Update(opts ModelServerOptions) {
	if opts.Path == "" {
		opts.Path = "/model"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	r.options.Store(&opts)
}

// Enabled reports whether the model server is consulted.
func (r *Remote) Enabled() bool {
	opts := r.options.Load()
	return opts.Enabled && opts.URL != ""
}

// Resolve asks the model server for a model matching the request. It
// returns "" without error when the model server is not enabled.
func (r *Remote) Resolve(ctx context.Context, req *power.Request) (string, error) {
	opts := r.options.Load()
	if !opts.Enabled || opts.URL == "" {
		slog.Debug("Model server disabled, skipping", "output_type", req.OutputType)
		return "", nil
	}

	body, err := json.Marshal(modelRequest{
		Metrics:        req.Metrics,
		OutputType:     string(req.OutputType),
		Source:         string(req.EnergySource()),
		Filter:         req.Filter,
		TrainerName:    req.TrainerName,
		SystemFeatures: req.SystemFeatures,
	})
	if err != nil {
		return "", fmt.Errorf("encode model request: %w", err)
	}

	endpoint := strings.TrimRight(opts.URL, "/") + "/" + strings.TrimLeft(opts.Path, "/")

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	data, err := fetch(ctx, r.client, opts.Retry, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", contentTypeJSON)
		httpReq.Header.Set("Accept", contentTypeArchive)
		return httpReq, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w from model server %s: %w", ErrUnavailable, endpoint, err)
	}

	dest := r.locator.Path(req.EnergySource(), req.OutputType)
	if err := xfs.Unzip(data, dest); err != nil {
		return "", fmt.Errorf("unpack model from %s: %w", endpoint, err)
	}

	slog.Info("Model downloaded from model server", "url", endpoint, "path", dest, "bytes", len(data))

	return dest, nil
}
