package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paolomoz/pagegen/internal/analyzer"
	"github.com/paolomoz/pagegen/internal/classify"
	"github.com/paolomoz/pagegen/internal/fetchfabric"
	"github.com/paolomoz/pagegen/internal/logging"
	"github.com/paolomoz/pagegen/internal/orchestrator"
	"github.com/paolomoz/pagegen/internal/render"
)

const (
	trackEventTTL    = 30 * 24 * time.Hour
	pageAnalysisTTL  = 24 * time.Hour
	summaryWindow    = 30
	recentQueriesKey = "recent-queries"
	maxRecentQueries = 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) newLogger(requestID, sessionID, query string) *logging.Logger {
	return logging.New(logging.Context{RequestID: requestID, SessionID: sessionID, Query: query},
		s.deps.Metrics, s.deps.Hooks, s.deps.Redactor)
}

// handleStream serves GET /api/stream?query=&sessionId=, streaming the full
// classify -> retrieve -> generate -> render -> image-fill pipeline for
// query as Server-Sent Events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	requestID := uuid.New().String()

	writer, ok := orchestrator.NewSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by this transport")
		return
	}

	orchestrator.Stream(r.Context(), writer, requestID, sessionID, query, orchestrator.Deps{
		Model:     s.deps.Model,
		Knowledge: s.deps.Knowledge,
		Sessions:  s.deps.DB,
		Images:    s.deps.Images,
		Metrics:   s.deps.Metrics,
		Hooks:     s.deps.Hooks,
		Redactor:  s.deps.Redactor,
	})
}

// handleClassify serves GET /api/classify?query=.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	c := classify.Classify(query)
	writeJSON(w, http.StatusOK, classifyResponse{
		Type:       string(c.Type),
		Confidence: c.Confidence,
		Flags:      classificationFlagNames(c),
		Budget:     c.Budget,
	})
}

func classificationFlagNames(c classify.Classification) []string {
	var names []string
	for _, f := range []classify.Flag{classify.FlagAccessibility, classify.FlagNoise, classify.FlagMedical, classify.FlagBudget, classify.FlagAllergy} {
		if c.HasFlag(f) {
			names = append(names, string(f))
		}
	}
	sort.Strings(names)
	return names
}

// handlePersist serves POST /api/persist: writes the rendered page through
// the configured content-repo client and returns its preview/live URLs.
func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req persistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Slug == "" || len(req.Blocks) == 0 {
		writeError(w, http.StatusBadRequest, "slug and blocks are required")
		return
	}

	html := render.WrapPage(req.Blocks)
	path := "/" + strings.TrimPrefix(req.Slug, "/")

	client := s.deps.Persistence.Client()
	result, err := client.PersistAndPublish(r.Context(), path, html)
	if err != nil {
		writeJSON(w, http.StatusOK, persistResponse{Success: false, Error: err.Error()})
		return
	}

	s.recordRecentQuery(req.Query, result.LiveURL)
	writeJSON(w, http.StatusOK, persistResponse{Success: true, LiveURL: result.LiveURL, PreviewURL: result.PreviewURL})
}

// recentQueryEntry is one row of the recent-queries KV list, used as the
// candidate set for the analytics analyzer's "recent pages" sweep.
type recentQueryEntry struct {
	Query string `json:"query"`
	URL   string `json:"url"`
}

func (s *Server) recordRecentQuery(query, url string) {
	if url == "" {
		return
	}
	var entries []recentQueryEntry
	if raw, ok, err := s.deps.DB.Get(recentQueriesKey); err == nil && ok {
		_ = json.Unmarshal(raw, &entries)
	}
	entries = append(entries, recentQueryEntry{Query: query, URL: url})
	if len(entries) > maxRecentQueries {
		entries = entries[len(entries)-maxRecentQueries:]
	}
	if raw, err := json.Marshal(entries); err == nil {
		_ = s.deps.DB.Put(recentQueriesKey, raw, 0)
	}
}

// handleImage serves GET /images/{slug}/{id}: the filename carries a .png
// suffix on the wire but blobs are stored keyed by bare id.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	id := strings.TrimSuffix(r.PathValue("id"), ".png")

	content, contentType, ok, err := s.deps.DB.GetBlob(slug, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	_, _ = w.Write(content)
}

// handleTrack serves POST /api/track: persists one analytics event with a
// 30-day TTL and bumps its day's counter for the summary endpoint.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Type == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "type and sessionId are required")
		return
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().Unix()
	}

	key := fmt.Sprintf("event:%s:%d", req.SessionID, req.Timestamp)
	raw, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode event")
		return
	}
	if err := s.deps.DB.Put(key, raw, trackEventTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	s.bumpDailyCounter(time.Unix(req.Timestamp, 0).UTC(), req.Type)
	writeJSON(w, http.StatusOK, map[string]string{"status": "tracked"})
}

func dailyKey(day time.Time) string {
	return "daily:" + day.Format("2006-01-02")
}

func (s *Server) bumpDailyCounter(day time.Time, eventType string) {
	key := dailyKey(day)
	counts := map[string]int{}
	if raw, ok, err := s.deps.DB.Get(key); err == nil && ok {
		_ = json.Unmarshal(raw, &counts)
	}
	counts[eventType]++
	if raw, err := json.Marshal(counts); err == nil {
		_ = s.deps.DB.Put(key, raw, summaryWindow*24*time.Hour)
	}
}

// handleAnalyze serves POST /api/analytics/analyze[?force=true]: a
// synthesized verdict over the recently persisted pages, rate-limited to
// one execution per hour unless force bypasses the gate (logged at warn).
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	log := s.newLogger(uuid.New().String(), "", "")

	if !force && !s.analyzeLimit.Allow() {
		writeError(w, http.StatusTooManyRequests, "analyze is rate-limited to once per hour; pass force=true to bypass")
		return
	}
	if force {
		log.Warn("analyze rate limiter bypassed by force=true from %s", r.RemoteAddr)
	}

	var entries []recentQueryEntry
	if raw, ok, err := s.deps.DB.Get(recentQueriesKey); err == nil && ok {
		_ = json.Unmarshal(raw, &entries)
	}

	var pageTexts []string
	for _, e := range entries {
		text, err := fetchPageText(r.Context(), e.URL)
		if err != nil {
			log.Warn("analyze: fetch %s: %v", e.URL, err)
			continue
		}
		pageTexts = append(pageTexts, text)
	}

	verdict := analyzer.Verdict{Summary: "No recent pages available to analyze"}
	if len(pageTexts) > 0 {
		combined := strings.Join(pageTexts, "\n\n---\n\n")
		verdict = analyzer.Analyze(r.Context(), combined, "recent pages aggregate", "multiple", log)
	}

	if raw, err := json.Marshal(verdict); err == nil {
		_ = s.deps.DB.Put("analysis:latest", raw, 0)
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Verdict: verdict, PagesCount: len(pageTexts)})
}

// handleAnalyzePage serves GET /api/analytics/analyze-page?url=&query=,
// caching the verdict for 24h under page-analysis:{url}.
func (s *Server) handleAnalyzePage(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	query := r.URL.Query().Get("query")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	cacheKey := "page-analysis:" + url
	if raw, ok, err := s.deps.DB.Get(cacheKey); err == nil && ok {
		var cached analyzer.Verdict
		if json.Unmarshal(raw, &cached) == nil {
			writeJSON(w, http.StatusOK, analyzeResponse{Verdict: cached, PagesCount: 1})
			return
		}
	}

	text, err := fetchPageText(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("fetch page: %v", err))
		return
	}

	log := s.newLogger(uuid.New().String(), "", query)
	verdict := analyzer.Analyze(r.Context(), text, query, url, log)

	if raw, err := json.Marshal(verdict); err == nil {
		_ = s.deps.DB.Put(cacheKey, raw, pageAnalysisTTL)
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Verdict: verdict, PagesCount: 1})
}

func fetchPageText(ctx context.Context, url string) (string, error) {
	resp, err := fetchfabric.RetryableFetch(ctx, url, fetchfabric.Init{}, fetchfabric.DefaultOptions())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 200*1024))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// handleSummary serves GET /api/analytics/summary: aggregates the trailing
// 30 days of daily:{yyyy-mm-dd} counters.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	byType := map[string]int{}
	total := 0
	now := time.Now().UTC()
	for i := 0; i < summaryWindow; i++ {
		day := now.AddDate(0, 0, -i)
		raw, ok, err := s.deps.DB.Get(dailyKey(day))
		if err != nil || !ok {
			continue
		}
		var counts map[string]int
		if json.Unmarshal(raw, &counts) != nil {
			continue
		}
		for t, n := range counts {
			byType[t] += n
			total += n
		}
	}
	writeJSON(w, http.StatusOK, summaryResponse{Days: summaryWindow, TotalEvents: total, ByType: byType})
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	worker := "disabled"
	if s.deps.Images != nil {
		if s.deps.Images.TokenWarm() {
			worker = "warm"
		} else {
			worker = "cold"
		}
	}
	persistenceState := "disabled"
	if s.deps.Persistence != nil && s.deps.Persistence.Client().Name() != "disabled" {
		persistenceState = "enabled"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Worker: worker + "/" + persistenceState})
}

// requireJSON checks the Content-Type header and returns false (with a 415
// response) if it is not application/json.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}
