package web

import (
	"github.com/paolomoz/pagegen/internal/analyzer"
	"github.com/paolomoz/pagegen/internal/render"
)

// classifyResponse is the JSON shape for GET /api/classify.
type classifyResponse struct {
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Flags      []string `json:"flags"`
	Budget     int      `json:"budget,omitempty"`
}

// persistRequest is the JSON body for POST /api/persist.
type persistRequest struct {
	Query  string                `json:"query"`
	Blocks []render.RenderedBlock `json:"blocks"`
	Slug   string                `json:"slug"`
}

// persistResponse is the JSON response for POST /api/persist.
type persistResponse struct {
	Success    bool   `json:"success"`
	LiveURL    string `json:"liveUrl,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Error      string `json:"error,omitempty"`
}

// trackRequest is the JSON body for POST /api/track.
type trackRequest struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp int64           `json:"timestamp"`
	Data      map[string]any  `json:"data,omitempty"`
}

// analyzeResponse wraps a synthesized verdict with the page count it covered.
type analyzeResponse struct {
	Verdict    analyzer.Verdict `json:"verdict"`
	PagesCount int              `json:"pagesCount"`
}

// summaryResponse is the JSON response for GET /api/analytics/summary.
type summaryResponse struct {
	Days        int            `json:"days"`
	TotalEvents int            `json:"totalEvents"`
	ByType      map[string]int `json:"byType"`
}

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status string `json:"status"`
	Worker string `json:"worker"`
}
