package persistence

import (
	"fmt"
	"os"
)

// Registry resolves the single configured content-repo client. It mirrors
// the gitprovider registry's env-driven wiring: a client whose required
// configuration is missing is registered disabled so startup never fails.
type Registry struct {
	client ContentRepoClient
}

// NewRegistry builds a Registry from the process environment. It requires
// DA_ORG and DA_REPO, plus either a service-account pair (DA_CLIENT_ID +
// DA_CLIENT_SECRET) or a static DA_TOKEN. With the pair, a DA_SERVICE_TOKEN
// that is also set is used directly as the bearer token and no IMS exchange
// takes place; without it the pair is exchanged at the IMS endpoint.
// DA_SERVICE_TOKEN on its own does not enable the client.
func NewRegistry() *Registry {
	org := os.Getenv("DA_ORG")
	repo := os.Getenv("DA_REPO")
	if org == "" || repo == "" {
		return &Registry{client: NewDisabledClient("DA_ORG and DA_REPO are not set")}
	}

	clientID := os.Getenv("DA_CLIENT_ID")
	clientSecret := os.Getenv("DA_CLIENT_SECRET")
	serviceToken := os.Getenv("DA_SERVICE_TOKEN")
	staticToken := os.Getenv("DA_TOKEN")

	var auth authConfig
	switch {
	case clientID != "" && clientSecret != "":
		auth = authConfig{clientID: clientID, clientSecret: clientSecret, serviceToken: serviceToken}
	case staticToken != "":
		auth = authConfig{staticToken: staticToken}
	default:
		return &Registry{client: NewDisabledClient(
			"neither DA_CLIENT_ID/DA_CLIENT_SECRET nor DA_TOKEN is set")}
	}

	return &Registry{client: NewDAClient(org, repo, auth)}
}

// Client returns the configured content-repo client (possibly disabled).
func (r *Registry) Client() ContentRepoClient {
	return r.client
}

// Resolve is kept for parity with the provider-registry shape the caller
// expects; since exactly one content repo is configured per deployment,
// it ignores name and always returns the registered client.
func (r *Registry) Resolve(name string) (ContentRepoClient, error) {
	if r.client == nil {
		return nil, fmt.Errorf("persistence: no content-repo client registered")
	}
	return r.client, nil
}
