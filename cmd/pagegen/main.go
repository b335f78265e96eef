package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paolomoz/pagegen/internal/config"
	"github.com/paolomoz/pagegen/internal/db"
	"github.com/paolomoz/pagegen/internal/images"
	"github.com/paolomoz/pagegen/internal/knowledge"
	"github.com/paolomoz/pagegen/internal/logging"
	"github.com/paolomoz/pagegen/internal/persistence"
	"github.com/paolomoz/pagegen/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pagegen",
		Short: "Generative web page pipeline: classify, retrieve, generate, render, stream",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server for the page generation pipeline",
		RunE:  run,
	}
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.Int("port", 8080, "HTTP port for the page generation server")
	f.String("state-dir", "/state", "directory for persistent state (SQLite DB, blobs)")
	f.String("knowledge-file", "", "path to a JSON file seeding the products/faqs/recipes/videos knowledge base")
	f.String("anthropic-model", "claude-sonnet-4-5", "Claude model used for content generation")
	f.Int("image-worker-concurrency", images.Concurrency, "max concurrent image generation requests per batch")
	f.Int("topk-products", knowledge.TopK.Products, "max products returned per retrieval")
	f.Int("topk-faqs", knowledge.TopK.Faqs, "max FAQs returned per retrieval")
	f.Int("topk-videos", knowledge.TopK.Videos, "max videos returned per retrieval")
	f.Int("topk-recipes", knowledge.TopK.Recipes, "max recipes returned per retrieval")
	f.Int("analyzer-rate-limit-seconds", 3600, "minimum seconds between non-forced /api/analytics/analyze runs")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("port", "port")
	bindFlag("state_dir", "state-dir")
	bindFlag("knowledge_file", "knowledge-file")
	bindFlag("anthropic_model", "anthropic-model")
	bindFlag("image_worker_concurrency", "image-worker-concurrency")
	bindFlag("topk_products", "topk-products")
	bindFlag("topk_faqs", "topk-faqs")
	bindFlag("topk_videos", "topk-videos")
	bindFlag("topk_recipes", "topk-recipes")
	bindFlag("analyzer_rate_limit_seconds", "analyzer-rate-limit-seconds")

	// PAGEGEN_* covers the tuning knobs registered as flags above.
	viper.SetEnvPrefix("PAGEGEN")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Credentials and the content-repo/Vertex settings keep their documented,
	// unprefixed external names rather than PAGEGEN_*, since they're shared
	// with the generator, analyzer, and content-repo packages that read them
	// straight off the process environment.
	for viperKey, envName := range map[string]string{
		"anthropic_api_key":           "ANTHROPIC_API_KEY",
		"google_ai_api_key":           "GOOGLE_AI_API_KEY",
		"openai_api_key":              "OPENAI_API_KEY",
		"google_service_account_json": "GOOGLE_SERVICE_ACCOUNT_JSON",
		"vertex_project_id":           "VERTEX_PROJECT_ID",
		"vertex_location":             "VERTEX_LOCATION",
		"da_org":                      "DA_ORG",
		"da_repo":                     "DA_REPO",
		"da_client_id":                "DA_CLIENT_ID",
		"da_client_secret":            "DA_CLIENT_SECRET",
		"da_service_token":            "DA_SERVICE_TOKEN",
		"da_token":                    "DA_TOKEN",
	} {
		_ = viper.BindEnv(viperKey, envName)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	// anthropic.NewClient(), and the analyzer's Google/OpenAI providers, read
	// their credentials straight from the process environment; re-exporting
	// the resolved Anthropic key here lets a --anthropic-api-key-style flag
	// (if one is ever added) reach the SDK the same way. The Google and
	// OpenAI keys are not re-exported.
	if cfg.AnthropicAPIKey != "" {
		os.Setenv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	}

	fmt.Printf("pagegen %s starting\n", config.Version)
	fmt.Printf("  Port: %d\n", cfg.Port)
	fmt.Printf("  State: %s\n", cfg.StateDir)
	fmt.Printf("  Model: %s\n", cfg.AnthropicModel)
	fmt.Println()

	knowledge.TopK.Products = orDefault(cfg.TopKProducts, knowledge.TopK.Products)
	knowledge.TopK.Faqs = orDefault(cfg.TopKFaqs, knowledge.TopK.Faqs)
	knowledge.TopK.Videos = orDefault(cfg.TopKVideos, knowledge.TopK.Videos)
	knowledge.TopK.Recipes = orDefault(cfg.TopKRecipes, knowledge.TopK.Recipes)

	store, err := knowledge.LoadFile(cfg.KnowledgeFile)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	database, err := db.Open(filepath.Join(cfg.StateDir, "pagegen.db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close() //nolint:errcheck

	metrics := logging.NewErrorMetrics()
	redactor := logging.NewRedactor()
	hooks := logging.Hooks{}

	imageWorker := buildImageWorker(cfg, database)

	registry := persistence.NewRegistry()

	webServer := web.New(cfg.Port, web.Deps{
		Model:                    cfg.AnthropicModel,
		DB:                       database,
		Knowledge:                store,
		Images:                   imageWorker,
		Persistence:              registry,
		Metrics:                  metrics,
		Hooks:                    hooks,
		Redactor:                 redactor,
		AnalyzeRateLimitInterval: time.Duration(orDefault(cfg.AnalyzerRateLimitSeconds, 3600)) * time.Second,
	})
	go func() {
		if err := webServer.Start(); err != nil {
			log.Printf("web server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down...", sig)
		cancel()
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("web server shutdown: %v", err)
	}

	return nil
}

// buildImageWorker wires a Vertex AI-backed image worker when the three
// required settings are present, otherwise returns nil so the pipeline
// starts with image hints left unfilled, the same always-starts posture
// the persistence registry takes when content-repo credentials are absent.
func buildImageWorker(cfg config.Config, database *db.DB) *images.Worker {
	if cfg.GoogleServiceAccountJSON == "" || cfg.VertexProjectID == "" || cfg.VertexLocation == "" {
		log.Printf("image generation disabled: GOOGLE_SERVICE_ACCOUNT_JSON, VERTEX_PROJECT_ID, and VERTEX_LOCATION must all be set")
		return nil
	}

	vcfg := images.VertexConfig{
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ProjectID:          cfg.VertexProjectID,
		Location:           cfg.VertexLocation,
	}

	worker := images.NewWorker(database, images.NewVertexGenerator(vcfg), images.NewVertexExchanger(vcfg))
	if cfg.ImageWorkerConcurrency > 0 {
		worker.SetConcurrency(cfg.ImageWorkerConcurrency)
	}
	return worker
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
