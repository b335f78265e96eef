package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/paolomoz/pagegen/internal/fetchfabric"
)

// googleLimiter and openaiLimiter cap each REST provider's outbound rate
// independently of the other fan-out arms, mirroring how a scraper hitting
// one external API keeps its own bucket rather than sharing one globally.
var (
	googleLimiter = fetchfabric.NewProviderLimiter(200*time.Millisecond, 5)
	openaiLimiter = fetchfabric.NewProviderLimiter(200*time.Millisecond, 5)
)

// provider is one of the three independent critique sources fanned out to
// by analyze. Each implementation routes its outbound call through C1's
// Claude preset, applying the same timeout/backoff policy regardless of
// transport (SDK call or raw HTTP).
type provider interface {
	Name() string
	Call(ctx context.Context, prompt string) (string, error)
}

func defaultProviders() []provider {
	return []provider{claudeProvider{model: "claude-sonnet-4-5"}, googleProvider{}, openaiProvider{}}
}

type claudeProvider struct{ model string }

func (p claudeProvider) Name() string { return "claude" }

func (p claudeProvider) Call(ctx context.Context, prompt string) (string, error) {
	var text string
	err := fetchfabric.RetryCall(ctx, fetchfabric.ClaudePreset(), nil, func(attemptCtx context.Context) error {
		client := anthropic.NewClient()
		msg, err := client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: 2048,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return fmt.Errorf("anthropic messages: %w", err)
		}
		for _, block := range msg.Content {
			if block.Type == "text" {
				text = block.Text
				return nil
			}
		}
		return fmt.Errorf("no text block in response")
	})
	return text, err
}

type googleProvider struct{}

func (p googleProvider) Name() string { return "google" }

func (p googleProvider) Call(ctx context.Context, prompt string) (string, error) {
	apiKey := os.Getenv("GOOGLE_AI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("GOOGLE_AI_API_KEY not configured")
	}
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent?key=%s", apiKey)
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	opts := fetchfabric.ClaudePreset()
	opts.Limiter = googleLimiter
	resp, err := fetchfabric.RetryableFetch(ctx, url, fetchfabric.Init{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   bytes.NewReader(payload),
	}, opts)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty gemini response")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

type openaiProvider struct{}

func (p openaiProvider) Name() string { return "openai" }

func (p openaiProvider) Call(ctx context.Context, prompt string) (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY not configured")
	}
	body := map[string]any{
		"model":    "gpt-4o-mini",
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	opts := fetchfabric.ClaudePreset()
	opts.Limiter = openaiLimiter
	resp, err := fetchfabric.RetryableFetch(ctx, "https://api.openai.com/v1/chat/completions", fetchfabric.Init{
		Method: http.MethodPost,
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + apiKey},
		},
		Body: bytes.NewReader(payload),
	}, opts)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty openai response")
	}
	return parsed.Choices[0].Message.Content, nil
}
