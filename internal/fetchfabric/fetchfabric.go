// Package fetchfabric provides a single retrying HTTP entrypoint with
// per-provider presets, shared by every outbound call the pipeline makes
// (retrieval, model prompts, image generation, persistence writes).
package fetchfabric

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Options controls retry behavior for a single retryableFetch call.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    map[int]bool
	OnRetry    func(attempt int, status int, err error)

	// Limiter, when set, is waited on before every attempt (including
	// retries) so a provider's outbound call rate never exceeds it
	// regardless of how many goroutines share this preset.
	Limiter *rate.Limiter
}

// NewProviderLimiter builds a token-bucket limiter for a single outbound
// provider, refilling one token every interval up to burst banked requests.
func NewProviderLimiter(interval time.Duration, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), burst)
}

// DefaultOptions matches the fabric's baseline contract: 30s timeout,
// 3 retries, 1s base delay, retrying on the standard overload/unavailable set.
func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		RetryOn:    statusSet(429, 500, 502, 503, 504),
	}
}

// ClaudePreset raises the timeout for model latency and tolerates the
// provider's overload status (529) as retryable.
func ClaudePreset() Options {
	o := DefaultOptions()
	o.Timeout = 60 * time.Second
	o.RetryOn = statusSet(429, 500, 502, 503, 504, 529)
	return o
}

// ImageModelPreset raises the timeout further for image synthesis latency
// but caps retries at one, since a slow attempt is expensive to repeat.
func ImageModelPreset() Options {
	o := DefaultOptions()
	o.Timeout = 120 * time.Second
	o.MaxRetries = 1
	return o
}

func statusSet(codes ...int) map[int]bool {
	m := make(map[int]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// RequestFailed is surfaced after the retry budget is exhausted, or by
// RetryCall when fn returns an error its isRetryable rejects.
type RequestFailed struct {
	URL        string
	Status     int
	LastErr    error
	Attempts   int
}

func (e *RequestFailed) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("request to %s failed after %d attempts: %v", e.URL, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("request to %s failed after %d attempts: status %d", e.URL, e.Attempts, e.Status)
}

func (e *RequestFailed) Unwrap() error { return e.LastErr }

// Init mirrors a fetch-style request initializer: method, headers, body.
type Init struct {
	Method string
	Header http.Header
	Body   io.Reader
}

// RetryableFetch performs an HTTP round trip, retrying on network errors,
// context deadline/abort, and any status in opts.RetryOn, using a jittered
// exponential backoff. Non-retryable 4xx statuses are returned immediately
// as a successful *http.Response for the caller to interpret.
func RetryableFetch(ctx context.Context, url string, init Init, opts Options) (*http.Response, error) {
	if opts.RetryOn == nil {
		opts = mergeDefaults(opts)
	}

	method := init.Method
	if method == "" {
		method = http.MethodGet
	}

	// init.Body is an io.Reader, not a factory: reading it once drains it,
	// so every attempt after the first would otherwise send an empty body.
	// Buffer it once and hand each attempt its own fresh reader.
	var bodyBytes []byte
	if init.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(init.Body)
		if err != nil {
			return nil, fmt.Errorf("fetchfabric: read request body: %w", err)
		}
	}

	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("fetchfabric: rate limiter: %w", err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)

		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, url, body)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("fetchfabric: build request: %w", err)
		}
		if init.Header != nil {
			req.Header = init.Header.Clone()
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			if attempt == opts.MaxRetries {
				break
			}
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, 0, err)
			}
			if !sleepBackoff(ctx, nil, attempt, opts.RetryDelay) {
				return nil, ctx.Err()
			}
			continue
		}

		if !opts.RetryOn[resp.StatusCode] {
			cancel()
			return resp, nil
		}

		lastStatus = resp.StatusCode
		retryAfter := resp.Header.Get("Retry-After")
		_ = resp.Body.Close()
		cancel()

		if attempt == opts.MaxRetries {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastStatus, nil)
		}
		if !sleepBackoff(ctx, parseRetryAfter(retryAfter), attempt, opts.RetryDelay) {
			return nil, ctx.Err()
		}
	}

	return nil, &RequestFailed{URL: url, Status: lastStatus, LastErr: lastErr, Attempts: opts.MaxRetries + 1}
}

// RetryCall applies the fabric's timeout-and-backoff policy to an arbitrary
// call, not just raw HTTP — used by the generator and analyzer, whose model
// calls go through the Anthropic SDK's own transport rather than
// RetryableFetch directly. isRetryable classifies an error returned by fn;
// a nil isRetryable treats every error as retryable.
func RetryCall(ctx context.Context, opts Options, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	if opts.RetryOn == nil {
		opts = mergeDefaults(opts)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return fmt.Errorf("fetchfabric: rate limiter: %w", err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		attempts++
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		retryable := isRetryable == nil || isRetryable(err)
		if !retryable || attempt == opts.MaxRetries {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, 0, err)
		}
		if !sleepBackoff(ctx, nil, attempt, opts.RetryDelay) {
			return ctx.Err()
		}
	}

	return &RequestFailed{LastErr: lastErr, Attempts: attempts}
}

func mergeDefaults(o Options) Options {
	d := DefaultOptions()
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.RetryOn == nil {
		o.RetryOn = d.RetryOn
	}
	return o
}

func parseRetryAfter(header string) *time.Duration {
	if header == "" {
		return nil
	}
	if secs, err := strconv.Atoi(header); err == nil {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d > 0 {
			return &d
		}
	}
	return nil
}

// sleepBackoff waits min(base*2^attempt + U(0, base*2^attempt/2), 30s),
// honoring an explicit Retry-After override when present. Returns false if
// ctx is canceled while waiting.
func sleepBackoff(ctx context.Context, retryAfter *time.Duration, attempt int, base time.Duration) bool {
	wait := retryAfter
	if wait == nil {
		d := base * time.Duration(1<<attempt)
		jitter := time.Duration(rand.Int63n(int64(d/2) + 1))
		capped := d + jitter
		if max := 30 * time.Second; capped > max {
			capped = max
		}
		wait = &capped
	}

	timer := time.NewTimer(*wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
