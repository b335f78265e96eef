package persistence

import (
	"context"
	"testing"
)

func TestDisabledClientRejectsPublish(t *testing.T) {
	c := NewDisabledClient("DA_ORG and DA_REPO are not set")

	_, err := c.PersistAndPublish(context.Background(), "/products/vitamix", "<main></main>")
	if err == nil {
		t.Fatalf("expected disabled client to reject publish")
	}
}

func TestRegistryFallsBackToDisabledWithoutCredentials(t *testing.T) {
	t.Setenv("DA_ORG", "")
	t.Setenv("DA_REPO", "")

	r := NewRegistry()
	if r.Client().Name() != "disabled" {
		t.Fatalf("expected disabled client without DA_ORG/DA_REPO, got %s", r.Client().Name())
	}
}

func TestRegistryBuildsDAClientWithStaticToken(t *testing.T) {
	t.Setenv("DA_ORG", "acme")
	t.Setenv("DA_REPO", "site")
	t.Setenv("DA_CLIENT_ID", "")
	t.Setenv("DA_CLIENT_SECRET", "")
	t.Setenv("DA_TOKEN", "static-token-value")

	r := NewRegistry()
	if r.Client().Name() != "da" {
		t.Fatalf("expected da client with DA_TOKEN set, got %s", r.Client().Name())
	}
}

func TestTokenCacheExpiryRespectsBuffer(t *testing.T) {
	c := &tokenCache{}
	c.set("tok", tokenRefreshBuffer/2)

	if _, ok := c.get(); ok {
		t.Fatalf("expected token within refresh buffer to be treated as expired")
	}
}

func TestTokenCacheEviction(t *testing.T) {
	c := &tokenCache{}
	c.set("tok", serviceTokenTTL)
	if _, ok := c.get(); !ok {
		t.Fatalf("expected cached token to be returned")
	}
	c.evict()
	if _, ok := c.get(); ok {
		t.Fatalf("expected evicted token cache to report miss")
	}
}
