package fetchfabric

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetryableFetchSucceedsOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := RetryableFetch(context.Background(), srv.URL, Init{}, DefaultOptions())
	if err != nil {
		t.Fatalf("RetryableFetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRetryableFetchRetriesOnRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond

	resp, err := RetryableFetch(context.Background(), srv.URL, Init{}, opts)
	if err != nil {
		t.Fatalf("RetryableFetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected eventual 200, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryableFetchSurfacesNonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := RetryableFetch(context.Background(), srv.URL, Init{}, DefaultOptions())
	if err != nil {
		t.Fatalf("RetryableFetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 passed through, got %d", resp.StatusCode)
	}
}

func TestRetryableFetchExhaustsRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.MaxRetries = 1
	opts.RetryDelay = time.Millisecond

	_, err := RetryableFetch(context.Background(), srv.URL, Init{}, opts)
	if err == nil {
		t.Fatalf("expected RequestFailed error")
	}
	var rf *RequestFailed
	if !asRequestFailed(err, &rf) {
		t.Fatalf("expected *RequestFailed, got %T: %v", err, err)
	}
	if rf.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", rf.Attempts)
	}
}

func asRequestFailed(err error, target **RequestFailed) bool {
	rf, ok := err.(*RequestFailed)
	if ok {
		*target = rf
	}
	return ok
}

func TestClaudePresetIncludesOverloadStatus(t *testing.T) {
	opts := ClaudePreset()
	if !opts.RetryOn[529] {
		t.Fatalf("expected Claude preset to retry on 529")
	}
	if opts.Timeout != 60*time.Second {
		t.Fatalf("expected 60s timeout, got %v", opts.Timeout)
	}
}

func TestRetryCallRetriesUntilSuccess(t *testing.T) {
	var calls int
	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond

	err := RetryCall(context.Background(), opts, nil, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryCall: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryCallStopsOnNonRetryableError(t *testing.T) {
	var calls int
	opts := DefaultOptions()
	opts.RetryDelay = time.Millisecond

	err := RetryCall(context.Background(), opts, func(error) bool { return false }, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("permanent")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestImageModelPresetLowersRetries(t *testing.T) {
	opts := ImageModelPreset()
	if opts.MaxRetries != 1 {
		t.Fatalf("expected 1 retry, got %d", opts.MaxRetries)
	}
	if opts.Timeout != 120*time.Second {
		t.Fatalf("expected 120s timeout, got %v", opts.Timeout)
	}
}

func TestRetryableFetchWaitsOnLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.Limiter = NewProviderLimiter(time.Hour, 1) // one token banked, none left after

	start := time.Now()
	resp, err := RetryableFetch(context.Background(), srv.URL, Init{}, opts)
	if err != nil {
		t.Fatalf("RetryableFetch: %v", err)
	}
	resp.Body.Close()
	if time.Since(start) > time.Second {
		t.Fatalf("first call should consume the banked token instantly")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = RetryableFetch(ctx, srv.URL, Init{}, opts)
	if err == nil {
		t.Fatalf("expected second call to block past the context deadline and fail")
	}
}
