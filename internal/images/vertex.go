package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/paolomoz/pagegen/internal/fetchfabric"
)

// cloudPlatformScope is the minimal scope needed to call Vertex AI's
// predict endpoint with a service-account assertion.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// VertexConfig names the Vertex AI project the image worker generates
// against, and the service-account key used to sign the token assertion.
type VertexConfig struct {
	ServiceAccountJSON string
	ProjectID          string
	Location           string
}

// NewVertexExchanger builds a TokenExchanger that signs a JWT assertion with
// the configured service-account key and exchanges it for a short-lived
// Vertex AI access token, the same credential flow a Drive-backed content
// source uses to authenticate as a service account.
func NewVertexExchanger(cfg VertexConfig) TokenExchanger {
	return func(ctx context.Context) (string, time.Duration, error) {
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.ServiceAccountJSON), cloudPlatformScope)
		if err != nil {
			return "", 0, fmt.Errorf("vertex: parse service account: %w", err)
		}
		token, err := creds.TokenSource.Token()
		if err != nil {
			return "", 0, fmt.Errorf("vertex: exchange assertion: %w", err)
		}
		ttl := time.Hour
		if !token.Expiry.IsZero() {
			if d := time.Until(token.Expiry); d > 0 {
				ttl = d
			}
		}
		return token.AccessToken, ttl, nil
	}
}

// NewVertexGenerator builds a Generator that calls Vertex AI's Imagen
// predict endpoint through the fetch fabric's image-model preset.
func NewVertexGenerator(cfg VertexConfig) Generator {
	endpoint := fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/imagen-3.0-generate-002:predict",
		cfg.Location, cfg.ProjectID, cfg.Location,
	)

	return func(ctx context.Context, token, prompt, size string) ([]byte, error) {
		body := map[string]any{
			"instances":  []map[string]string{{"prompt": prompt}},
			"parameters": map[string]any{"sampleCount": 1, "aspectRatio": aspectRatioFor(size)},
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		resp, err := fetchfabric.RetryableFetch(ctx, endpoint, fetchfabric.Init{
			Method: http.MethodPost,
			Header: http.Header{
				"Content-Type":  {"application/json"},
				"Authorization": {"Bearer " + token},
			},
			Body: bytes.NewReader(payload),
		}, fetchfabric.ImageModelPreset())
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var parsed struct {
			Predictions []struct {
				BytesBase64Encoded string `json:"bytesBase64Encoded"`
			} `json:"predictions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("vertex: decode predict response: %w", err)
		}
		if len(parsed.Predictions) == 0 || parsed.Predictions[0].BytesBase64Encoded == "" {
			return nil, fmt.Errorf("vertex: empty prediction for %q", prompt)
		}
		return base64.StdEncoding.DecodeString(parsed.Predictions[0].BytesBase64Encoded)
	}
}

// aspectRatioFor maps the worker's size classes to Imagen's aspect ratio enum.
func aspectRatioFor(size string) string {
	switch size {
	case "hero":
		return "16:9"
	case "column":
		return "9:16"
	default:
		return "1:1"
	}
}
