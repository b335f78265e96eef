package images

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paolomoz/pagegen/internal/logging"
)

// Concurrency is the default bounded batch width for image generation.
const Concurrency = 3

// BlobStore is the subset of *db.DB the image worker needs.
type BlobStore interface {
	PutBlob(slug, id string, content []byte, contentType string) error
}

// Generator calls the external image model and returns raw image bytes.
type Generator func(ctx context.Context, token, prompt, size string) ([]byte, error)

// tokenCache mirrors the persistence package's last-write-wins access
// token cache, sized for the image model's ~1h assertion-exchange token.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

const safetyBuffer = 60 * time.Second

func (c *tokenCache) get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expiresAt.Add(-safetyBuffer)) {
		return "", false
	}
	return c.token, true
}

func (c *tokenCache) set(token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = time.Now().Add(ttl)
}

// TokenExchanger exchanges a signed assertion for a short-lived access token.
type TokenExchanger func(ctx context.Context) (token string, ttl time.Duration, err error)

// Worker fills ImageRequests concurrently, stores successful results in a
// BlobStore, and substitutes sibling or static fallback URLs for failures.
type Worker struct {
	store      BlobStore
	generate   Generator
	exchange   TokenExchanger
	cache      *tokenCache
	concurrent int
	fallbacks  map[string][]string // size -> static fallback URLs
}

// NewWorker builds a Worker with the default batch concurrency.
func NewWorker(store BlobStore, generate Generator, exchange TokenExchanger) *Worker {
	return &Worker{
		store:      store,
		generate:   generate,
		exchange:   exchange,
		cache:      &tokenCache{},
		concurrent: Concurrency,
		fallbacks: map[string][]string{
			"hero":      {"/images/fallback/hero-default.png"},
			"card":      {"/images/fallback/card-default.png"},
			"column":    {"/images/fallback/column-default.png"},
			"thumbnail": {"/images/fallback/thumb-default.png"},
		},
	}
}

// SetConcurrency overrides the worker's batch width. n <= 0 is ignored.
func (w *Worker) SetConcurrency(n int) {
	if n > 0 {
		w.concurrent = n
	}
}

// Fill generates images for every request, returning a map of id -> URL.
// Requests are processed in batches of w.concurrent; a failure within a
// batch never aborts its siblings, and is resolved after the batch
// completes via sibling substitution or a static fallback.
func (w *Worker) Fill(ctx context.Context, log *logging.Logger, reqs []ImageRequest) map[string]string {
	results := make(map[string]string, len(reqs))
	failed := make(map[string]ImageRequest)
	var mu sync.Mutex

	for batchStart := 0; batchStart < len(reqs); batchStart += w.concurrent {
		end := batchStart + w.concurrent
		if end > len(reqs) {
			end = len(reqs)
		}
		batch := reqs[batchStart:end]

		g, gCtx := errgroup.WithContext(ctx)
		for _, req := range batch {
			req := req
			g.Go(func() error {
				url, err := w.fillOne(gCtx, req)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if log != nil {
						log.Warn("image generation failed for %s (%s): %v", req.ID, req.Size, err)
					}
					failed[req.ID] = req
					return nil
				}
				results[req.ID] = url
				return nil
			})
		}
		_ = g.Wait() // per-request errors are swallowed above; fillOne never returns one to abort the batch
	}

	w.resolveFallbacks(failed, results, reqs, log)
	return results
}

func (w *Worker) fillOne(ctx context.Context, req ImageRequest) (string, error) {
	token, err := w.accessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("access token: %w", err)
	}

	content, err := w.generate(ctx, token, req.Prompt, req.Size)
	if err != nil {
		return "", err
	}

	if err := w.store.PutBlob(req.Slug, req.ID, content, "image/png"); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}

	return fmt.Sprintf("/images/%s/%s.png", req.Slug, req.ID), nil
}

// TokenWarm reports whether the worker currently holds a cached, unexpired
// access token, used by the health endpoint to surface worker readiness
// without forcing a token exchange on every health check.
func (w *Worker) TokenWarm() bool {
	_, ok := w.cache.get()
	return ok
}

func (w *Worker) accessToken(ctx context.Context) (string, error) {
	if token, ok := w.cache.get(); ok {
		return token, nil
	}
	token, ttl, err := w.exchange(ctx)
	if err != nil {
		return "", err
	}
	w.cache.set(token, ttl)
	return token, nil
}

// resolveFallbacks replaces each failed request's URL with a successful
// sibling of the same size (chosen by hash(id) mod k), or a static
// size-indexed fallback if no sibling succeeded.
func (w *Worker) resolveFallbacks(failed map[string]ImageRequest, results map[string]string, all []ImageRequest, log *logging.Logger) {
	if len(failed) == 0 {
		return
	}

	siblingsBySize := make(map[string][]string)
	for _, req := range all {
		if url, ok := results[req.ID]; ok {
			siblingsBySize[req.Size] = append(siblingsBySize[req.Size], url)
		}
	}

	for id, req := range failed {
		siblings := siblingsBySize[req.Size]
		if len(siblings) > 0 {
			idx := int(hashID(id) % uint32(len(siblings)))
			results[id] = siblings[idx]
			continue
		}
		if fallbacks := w.fallbacks[req.Size]; len(fallbacks) > 0 {
			results[id] = fallbacks[0]
			continue
		}
		if log != nil {
			log.Error("UpstreamUnavailable", "no sibling or fallback available for image %s (%s)", id, req.Size)
		}
	}
}

func hashID(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32()
}
