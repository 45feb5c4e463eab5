package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"

	"github.com/ju4n97/estimator/internal/model"
	"github.com/ju4n97/estimator/internal/power"
	"github.com/ju4n97/estimator/internal/xfs"
)

// ArchivedModel maps a source and output type to a model archive. URL is
// an http(s) URL, a file:// URL or a plain path to a zip file.
type ArchivedModel struct {
	Source     string
	OutputType string
	URL        string
}

type archiveTable struct {
	models map[string]string
}

func archiveKey(source power.EnergySource, outputType power.OutputType) string {
	return string(outputType) + "/" + string(source)
}

// Archive resolves models from a static table of archives.
type Archive struct {
	locator *model.Locator
	client  *http.Client
	retry   RetryPolicy
	table   atomic.Pointer[archiveTable]
}

// NewArchive creates an archive resolver.
func NewArchive(locator *model.Locator, models []ArchivedModel, retry RetryPolicy) *Archive {
	a := &Archive{
		locator: locator,
		client:  &http.Client{Timeout: defaultTimeout},
		retry:   retry,
	}
	a.Update(models)

	return a
}

// Update replaces the archive table, e.g. after a config reload.
func (a *Archive) Update(models []ArchivedModel) {
	table := &archiveTable{models: make(map[string]string, len(models))}
	for _, m := range models {
		src := m.Source
		key := archiveKey(power.NormalizeSource(&src), power.OutputType(m.OutputType))
		table.models[key] = m.URL
	}
	a.table.Store(table)
}

// Lookup returns the archive configured for the key.
func (a *Archive) Lookup(source power.EnergySource, outputType power.OutputType) (string, bool) {
	u, ok := a.table.Load().models[archiveKey(source, outputType)]
	return u, ok
}

// Resolve unpacks the archived model for the request at its Locator path.
// It returns "" without error when the table has no entry for the request.
func (a *Archive) Resolve(ctx context.Context, req *power.Request) (string, error) {
	source, outputType := req.EnergySource(), req.OutputType

	location, ok := a.Lookup(source, outputType)
	if !ok {
		slog.Debug("No archived model configured", "output_type", outputType, "source", source)
		return "", nil
	}

	data, err := a.read(ctx, location)
	if err != nil {
		return "", fmt.Errorf("%w from archive %s: %w", ErrUnavailable, location, err)
	}

	dest := a.locator.Path(source, outputType)
	if err := xfs.Unzip(data, dest); err != nil {
		return "", fmt.Errorf("unpack archived model %s: %w", location, err)
	}

	slog.Info("Archived model unpacked", "location", location, "path", dest)

	return dest, nil
}

func (a *Archive) read(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		path := location
		if err == nil && u.Scheme == "file" {
			path = u.Path
		}
		return os.ReadFile(xfs.ExpandTilde(path))
	}

	if !strings.HasPrefix(u.Scheme, "http") {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return fetch(ctx, a.client, a.retry, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, location, http.NoBody)
	})
}
