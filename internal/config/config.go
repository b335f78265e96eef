// Package config loads the generation pipeline's runtime configuration from
// viper, which merges flag values, environment variables, and defaults set
// up by the cobra command in cmd/pagegen.
package config

import "github.com/spf13/viper"

// Version is stamped at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// Config holds all runtime configuration for the page generation service.
type Config struct {
	Port          int
	StateDir      string
	KnowledgeFile string

	AnthropicAPIKey          string
	AnthropicModel           string
	GoogleAIAPIKey           string
	OpenAIAPIKey             string
	GoogleServiceAccountJSON string
	VertexProjectID          string
	VertexLocation           string

	DAOrg          string
	DARepo         string
	DAClientID     string
	DAClientSecret string
	DAServiceToken string
	DAToken        string

	ImageWorkerConcurrency int

	TopKProducts int
	TopKFaqs     int
	TopKVideos   int
	TopKRecipes  int

	AnalyzerRateLimitSeconds int
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/pagegen).
func Load() Config {
	return Config{
		Port:          viper.GetInt("port"),
		StateDir:      viper.GetString("state_dir"),
		KnowledgeFile: viper.GetString("knowledge_file"),

		AnthropicAPIKey:          viper.GetString("anthropic_api_key"),
		AnthropicModel:           viper.GetString("anthropic_model"),
		GoogleAIAPIKey:           viper.GetString("google_ai_api_key"),
		OpenAIAPIKey:             viper.GetString("openai_api_key"),
		GoogleServiceAccountJSON: viper.GetString("google_service_account_json"),
		VertexProjectID:          viper.GetString("vertex_project_id"),
		VertexLocation:           viper.GetString("vertex_location"),

		DAOrg:          viper.GetString("da_org"),
		DARepo:         viper.GetString("da_repo"),
		DAClientID:     viper.GetString("da_client_id"),
		DAClientSecret: viper.GetString("da_client_secret"),
		DAServiceToken: viper.GetString("da_service_token"),
		DAToken:        viper.GetString("da_token"),

		ImageWorkerConcurrency: viper.GetInt("image_worker_concurrency"),

		TopKProducts: viper.GetInt("topk_products"),
		TopKFaqs:     viper.GetInt("topk_faqs"),
		TopKVideos:   viper.GetInt("topk_videos"),
		TopKRecipes:  viper.GetInt("topk_recipes"),

		AnalyzerRateLimitSeconds: viper.GetInt("analyzer_rate_limit_seconds"),
	}
}
