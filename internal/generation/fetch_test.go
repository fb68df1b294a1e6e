package generation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcherSucceedsOnThirdAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(srv.Close)

	var slept []time.Duration
	fetcher := &Fetcher{
		Client: srv.Client(),
		Policy: RetryPolicy{
			MaxAttempts: 3,
			BackoffUnit: time.Second,
			Sleep:       func(d time.Duration) { slept = append(slept, d) },
		},
	}

	payload, contentType, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload) != "png-bytes" {
		t.Fatalf("unexpected payload %q", payload)
	}
	if contentType != "image/png" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	// Failed attempt k sleeps 2^k units: 2s after the first, 4s after the second.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), slept)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestFetcherExhaustsAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	var sleeps int
	fetcher := &Fetcher{
		Client: srv.Client(),
		Policy: RetryPolicy{
			MaxAttempts: 3,
			BackoffUnit: time.Second,
			Sleep:       func(time.Duration) { sleeps++ },
		},
	}

	_, _, err := fetcher.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrFetchExhausted) {
		t.Fatalf("expected ErrFetchExhausted, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
	// No delay after the final attempt.
	if sleeps != 2 {
		t.Fatalf("expected 2 sleeps, got %d", sleeps)
	}
}

func TestFetcherDoesNotRetryOnSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	fetcher := &Fetcher{
		Client: srv.Client(),
		Policy: RetryPolicy{MaxAttempts: 3, BackoffUnit: time.Second, Sleep: func(time.Duration) {
			t.Fatal("sleep must not be called on success")
		}},
	}

	payload, _, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(payload) != "ok" {
		t.Fatalf("unexpected payload %q", payload)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}
