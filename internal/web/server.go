// Package web exposes the generation pipeline over HTTP: a streaming
// page-generation endpoint, classification/persistence/image/analytics
// JSON endpoints, and a health check. It owns nothing but request routing
// and wire (de)serialization — every operation delegates to the package
// that implements it.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/paolomoz/pagegen/internal/config"
	"github.com/paolomoz/pagegen/internal/db"
	"github.com/paolomoz/pagegen/internal/images"
	"github.com/paolomoz/pagegen/internal/knowledge"
	"github.com/paolomoz/pagegen/internal/logging"
	"github.com/paolomoz/pagegen/internal/orchestrator"
	"github.com/paolomoz/pagegen/internal/persistence"
)

// Deps bundles every pipeline component the web server routes requests
// into. Images and Persistence may be nil/disabled; everything else is
// required to serve the stream endpoint.
type Deps struct {
	Model       string
	DB          *db.DB
	Knowledge   *knowledge.Store
	Images      *images.Worker
	Persistence *persistence.Registry
	Metrics     *logging.ErrorMetrics
	Hooks       logging.Hooks
	Redactor    *logging.Redactor

	// AnalyzeRateLimitInterval gates /api/analytics/analyze; the zero
	// value falls back to one execution per hour.
	AnalyzeRateLimitInterval time.Duration
}

// Server is the HTTP server for the page generation pipeline.
type Server struct {
	deps         Deps
	mux          *http.ServeMux
	server       *http.Server
	analyzeLimit *rate.Limiter
}

// New builds a Server wired to deps and listening on port.
func New(port int, deps Deps) *Server {
	if deps.AnalyzeRateLimitInterval <= 0 {
		deps.AnalyzeRateLimitInterval = time.Hour
	}

	s := &Server{
		deps:         deps,
		mux:          http.NewServeMux(),
		analyzeLimit: rate.NewLimiter(rate.Every(deps.AnalyzeRateLimitInterval), 1),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withCORS(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the stream endpoint has no fixed response size
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. It blocks until the server is shut down.
func (s *Server) Start() error {
	log.Printf("pagegen listening on %s (version %s)", s.server.Addr, config.Version)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/stream", s.handleStream)
	s.mux.HandleFunc("GET /api/classify", s.handleClassify)
	s.mux.HandleFunc("POST /api/persist", s.handlePersist)
	s.mux.HandleFunc("GET /images/{slug}/{id}", s.handleImage)
	s.mux.HandleFunc("POST /api/track", s.handleTrack)
	s.mux.HandleFunc("POST /api/analytics/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/analytics/analyze-page", s.handleAnalyzePage)
	s.mux.HandleFunc("GET /api/analytics/summary", s.handleSummary)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// withCORS applies permissive CORS headers to every response and answers
// OPTIONS preflight requests directly, mirroring the teacher's dashboard
// API's all-origins-allowed policy now applied pipeline-wide.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
