package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/paolomoz/pagegen/internal/fetchfabric"
)

const (
	imsTokenURL        = "https://ims-na1.adobelogin.com/ims/token/v3"
	contentRepoBaseURL = "https://admin.da.live"
	tokenRefreshBuffer = 60 * time.Second
	serviceTokenTTL    = 23 * time.Hour
)

// authConfig captures the credential shape resolved by the Registry.
type authConfig struct {
	clientID     string
	clientSecret string
	serviceToken string
	staticToken  string
}

// tokenCache is the process-wide, last-write-wins IMS access token cache.
// Concurrent refreshes are not deduplicated: both writers produce a valid
// token and the later write simply wins, so no locking beyond the mutex
// guarding the struct fields is required.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (c *tokenCache) get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expiresAt.Add(-tokenRefreshBuffer)) {
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

func (c *tokenCache) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// DAClient implements ContentRepoClient against the content-authoring API:
// a strict create→preview→publish→purge chain, each step retried once on
// a 401 after the cached token is evicted and refreshed.
type DAClient struct {
	org   string
	repo  string
	auth  authConfig
	cache *tokenCache
}

// NewDAClient creates a DAClient bound to a single org/repo pair.
func NewDAClient(org, repo string, auth authConfig) *DAClient {
	return &DAClient{org: org, repo: repo, auth: auth, cache: &tokenCache{}}
}

func (c *DAClient) Name() string { return "da" }

// PersistAndPublish runs the four-step publish chain for path.html.
func (c *DAClient) PersistAndPublish(ctx context.Context, path string, html string) (*PublishResult, error) {
	ref := "main"

	sourceURL := fmt.Sprintf("%s/source/%s/%s%s.html", contentRepoBaseURL, c.org, c.repo, path)
	if err := c.doWithAuthRetry(ctx, http.MethodPut, sourceURL, []byte(html), "text/html"); err != nil {
		return nil, fmt.Errorf("persist: create source: %w", err)
	}

	previewURL := fmt.Sprintf("%s/preview/%s/%s/%s%s", contentRepoBaseURL, c.org, c.repo, ref, path)
	if err := c.doWithAuthRetry(ctx, http.MethodPost, previewURL, nil, ""); err != nil {
		return nil, fmt.Errorf("persist: preview: %w", err)
	}

	liveURL := fmt.Sprintf("%s/live/%s/%s/%s%s", contentRepoBaseURL, c.org, c.repo, ref, path)
	if err := c.doWithAuthRetry(ctx, http.MethodPost, liveURL, nil, ""); err != nil {
		return nil, fmt.Errorf("persist: publish: %w", err)
	}

	cacheURL := fmt.Sprintf("%s/cache/%s/%s/%s%s", contentRepoBaseURL, c.org, c.repo, ref, path)
	if err := c.doWithAuthRetry(ctx, http.MethodPost, cacheURL, nil, ""); err != nil {
		// Cache purge is best-effort: log and continue rather than fail the publish.
		fmt.Printf("persistence: cache purge failed for %s: %v\n", path, err)
	}

	return &PublishResult{
		PreviewURL: fmt.Sprintf("https://%s--%s--%s.aem.page%s", ref, c.repo, c.org, path),
		LiveURL:    fmt.Sprintf("https://%s--%s--%s.aem.live%s", ref, c.repo, c.org, path),
	}, nil
}

// doWithAuthRetry performs one content-repo call, evicting the cached token
// and retrying exactly once if the first attempt returns 401. body is
// buffered bytes, not a reader, so the 401 retry can resend the exact same
// payload instead of an already-drained stream.
func (c *DAClient) doWithAuthRetry(ctx context.Context, method, url string, body []byte, contentType string) error {
	resp, err := c.do(ctx, method, url, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusUnauthorized {
		c.cache.evict()
		resp2, err := c.do(ctx, method, url, body, contentType)
		if err != nil {
			return err
		}
		defer resp2.Body.Close() //nolint:errcheck
		return checkStatus(resp2)
	}

	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

func (c *DAClient) do(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	header := http.Header{"Authorization": {"Bearer " + token}}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	resp, err := fetchfabric.RetryableFetch(ctx, url, fetchfabric.Init{
		Method: method,
		Header: header,
		Body:   bodyReader,
	}, fetchfabric.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// accessToken returns a cached token. When the cache is empty or near
// expiry it uses the static DA_TOKEN, else DA_SERVICE_TOKEN, directly as the
// bearer token; only when neither is configured does it exchange the
// client ID and secret at the IMS endpoint (client-credentials grant).
func (c *DAClient) accessToken(ctx context.Context) (string, error) {
	if token, ok := c.cache.get(); ok {
		return token, nil
	}

	if c.auth.staticToken != "" {
		c.cache.set(c.auth.staticToken, serviceTokenTTL)
		return c.auth.staticToken, nil
	}

	if c.auth.serviceToken != "" {
		c.cache.set(c.auth.serviceToken, serviceTokenTTL)
		return c.auth.serviceToken, nil
	}

	form := strings.NewReader(fmt.Sprintf(
		"grant_type=client_credentials&client_id=%s&client_secret=%s&scope=AdobeID,openid",
		c.auth.clientID, c.auth.clientSecret))

	resp, err := fetchfabric.RetryableFetch(ctx, imsTokenURL, fetchfabric.Init{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
		Body:   form,
	}, fetchfabric.DefaultOptions())
	if err != nil {
		return "", fmt.Errorf("ims token exchange: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("ims token exchange: %w", err)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode ims response: %w", err)
	}

	c.cache.set(tokenResp.AccessToken, serviceTokenTTL)
	return tokenResp.AccessToken, nil
}
