package generate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/paolomoz/pagegen/internal/classify"
	"github.com/paolomoz/pagegen/internal/fetchfabric"
	"github.com/paolomoz/pagegen/internal/knowledge"
	"github.com/paolomoz/pagegen/internal/logging"
	"github.com/paolomoz/pagegen/internal/render"
	"github.com/paolomoz/pagegen/internal/session"
)

// Result is the generator's contracted output.
type Result struct {
	Atoms              []render.Atom `json:"atoms"`
	SuggestedBlocks    []string      `json:"suggestedBlocks"`
	RecommendedProduct *knowledge.Product
}

type modelResponse struct {
	Atoms              []render.Atom `json:"atoms"`
	SuggestedBlocks    []string      `json:"suggestedBlocks"`
	RecommendedProduct *string       `json:"recommendedProduct,omitempty"`
}

// Generate builds the prompt, calls model via the Claude preset (retried
// through C1's fabric), and corrects any model-authored URLs. On parse
// failure it logs and degrades to an empty atoms array rather than failing
// the whole pipeline.
func Generate(ctx context.Context, model string, query string, c classify.Classification, retrieved knowledge.Retrieved, s *session.Session, log *logging.Logger) Result {
	prompt := BuildPrompt(query, c, retrieved, s)

	raw, err := callModel(ctx, model, prompt)
	if err != nil {
		if log != nil {
			log.Error("UpstreamUnavailable", "generator model call failed: %v", err)
		}
		return Result{}
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		if log != nil {
			log.Error("ParseError", "generator model returned non-JSON output: %v", err)
		}
		return Result{}
	}

	correctURLs(resp.Atoms, retrieved, log)

	result := Result{Atoms: resp.Atoms, SuggestedBlocks: resp.SuggestedBlocks}
	result.RecommendedProduct = deriveRecommendedProduct(c, retrieved)
	return result
}

func callModel(ctx context.Context, model, prompt string) (string, error) {
	var text string
	err := fetchfabric.RetryCall(ctx, fetchfabric.ClaudePreset(), nil, func(attemptCtx context.Context) error {
		client := anthropic.NewClient()
		msg, err := client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: 4096,
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
