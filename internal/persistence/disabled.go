package persistence

import (
	"context"
	"fmt"
)

// DisabledClient implements ContentRepoClient but rejects every operation.
// It is used when no content-repo credentials are configured, so the
// pipeline can still generate and stream pages without publishing them.
type DisabledClient struct {
	reason string
}

// NewDisabledClient creates a client that rejects all operations with a
// descriptive error naming why publishing is unavailable.
func NewDisabledClient(reason string) *DisabledClient {
	return &DisabledClient{reason: reason}
}

func (d *DisabledClient) Name() string { return "disabled" }

func (d *DisabledClient) PersistAndPublish(_ context.Context, _ string, _ string) (*PublishResult, error) {
	return nil, fmt.Errorf("content-repo publishing is disabled: %s", d.reason)
}
