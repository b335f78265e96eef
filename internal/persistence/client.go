// Package persistence implements the content-repo publish chain: a
// token-cached, credentialed four-step write (source → preview → live →
// cache purge) fronted by a small provider-registry abstraction so the
// pipeline can run with publishing disabled when no credentials are set.
package persistence

import "context"

// PublishResult is returned after a page has been written and published.
type PublishResult struct {
	PreviewURL string
	LiveURL    string
}

// ContentRepoClient abstracts the credentialed content-repo write chain.
// Implementations target a specific repo host; DisabledClient is used when
// no credentials are configured so the system always starts.
type ContentRepoClient interface {
	// Name returns the client identifier (e.g., "da").
	Name() string

	// PersistAndPublish writes html to path and runs it through the
	// preview → live → cache-purge chain, returning the resulting URLs.
	PersistAndPublish(ctx context.Context, path string, html string) (*PublishResult, error)
}
