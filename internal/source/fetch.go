package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultRetryDelay  = 2 * time.Second
	defaultMaxRetries  = 3
	defaultTimeout     = 30 * time.Second
	maxArchiveBytes    = 512 << 20
	userAgent          = "estimator"
	contentTypeJSON    = "application/json"
	contentTypeArchive = "application/zip"
)

// RetryPolicy controls how often a failed download is attempted again.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.Delay < 0 {
		p.Delay = defaultRetryDelay
	}
	return p
}

// statusError is returned for a non-200 answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// retryable reports whether another attempt could succeed.
func (e *statusError) retryable() bool {
	return e.code >= http.StatusInternalServerError || e.code == http.StatusTooManyRequests
}

// fetch performs the request built by newRequest and returns the body of a
// 200 answer, retrying transport errors and 5xx answers.
func fetch(ctx context.Context, client *http.Client, policy RetryPolicy, newRequest func(context.Context) (*http.Request, error)) ([]byte, error) {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := range policy.MaxRetries {
		if attempt > 0 {
			slog.Info("Retrying download", "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(policy.Delay):
			}
		}

		req, err := newRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		data, err := do(client, req)
		if err == nil {
			return data, nil
		}

		lastErr = err
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("download canceled: %w", err)
		}
	}

	return nil, lastErr
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxArchiveBytes {
		return nil, fmt.Errorf("archive exceeds %d bytes", maxArchiveBytes)
	}

	return data, nil
}
