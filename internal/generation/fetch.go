package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"appgen-backend/internal/shared/telemetry"
)

// RetryPolicy bounds the fetch retry loop. A failed attempt k (1-indexed) is
// followed by a delay of 2^k backoff units; no delay follows the final
// attempt. Sleep is injectable so tests run without real delays.
type RetryPolicy struct {
	MaxAttempts int
	BackoffUnit time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy matches the provider-asset download behavior: three
// attempts with second-scale backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BackoffUnit: time.Second, Sleep: time.Sleep}
}

// Fetcher downloads provider-hosted assets with bounded retries. Only
// transport errors and non-2xx statuses are retried; a successful response
// with an unusable body is the caller's problem.
type Fetcher struct {
	Client *http.Client
	Policy RetryPolicy
}

// NewFetcher builds a fetcher with the default policy.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{Client: client, Policy: DefaultRetryPolicy()}
}

// Fetch downloads url, returning the payload and the response content type.
// After exhausting all attempts it fails with an error wrapping
// ErrFetchExhausted and the last attempt's error.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	policy := f.Policy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.Sleep == nil {
		policy.Sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		payload, contentType, err := f.fetchOnce(ctx, url)
		if err == nil {
			return payload, contentType, nil
		}
		lastErr = err
		telemetry.Warn("asset.fetch_retry", map[string]any{
			"url":     url,
			"attempt": attempt,
			"error":   sanitizeError(err),
		})
		if attempt < policy.MaxAttempts {
			policy.Sleep(policy.BackoffUnit * (1 << attempt))
		}
	}
	return nil, "", fmt.Errorf("%w after %d attempts: %v", ErrFetchExhausted, policy.MaxAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return payload, resp.Header.Get("Content-Type"), nil
}
