// Package session implements the KV-backed user session store: journey
// stage derivation, recent queries, and inferred interests.
package session

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ttl            = 30 * 24 * time.Hour
	maxQueries     = 20
	journeyWindow  = 5
	idAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	idLength       = 16
)

// JourneyStage is the three-valued enum describing a user's inferred
// progress toward purchase.
type JourneyStage string

const (
	StageExploring JourneyStage = "exploring"
	StageComparing JourneyStage = "comparing"
	StageDeciding  JourneyStage = "deciding"
)

// QueryRecord is one entry in a session's bounded query history.
type QueryRecord struct {
	Query        string    `json:"query"`
	Type         string    `json:"type"`
	GeneratedURL string    `json:"generatedUrl,omitempty"`
	At           time.Time `json:"at"`
}

// Profile holds interest signals derived from query history.
type Profile struct {
	Interests           []string `json:"interests"`
	PreferredSeries     string   `json:"preferredSeries,omitempty"`
	DietaryPreferences  []string `json:"dietaryPreferences,omitempty"`
	PriceRange          *int     `json:"priceRange,omitempty"`
}

// Session is the persisted per-user record.
type Session struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
	Queries      []QueryRecord `json:"queries"`
	Profile      Profile       `json:"profile"`
	JourneyStage JourneyStage  `json:"journeyStage"`
	Conversions  int           `json:"conversions"`
}

// Store is the subset of *db.DB the session package needs.
type Store interface {
	Put(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, bool, error)
}

func key(id string) string { return "session:" + id }

// GetOrCreateSession looks up id (synthesizing a new one if absent or
// missing) and returns the session, creating it on first use.
func GetOrCreateSession(store Store, id string) (*Session, error) {
	if id != "" {
		if s, ok, err := load(store, id); err != nil {
			return nil, err
		} else if ok {
			return s, nil
		}
	}

	newID, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:           newID,
		CreatedAt:    now,
		LastActivity: now,
		JourneyStage: StageExploring,
	}
	if err := save(store, s); err != nil {
		return nil, err
	}
	return s, nil
}

func load(store Store, id string) (*Session, bool, error) {
	raw, ok, err := store.Get(key(id))
	if err != nil || !ok {
		return nil, ok, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return &s, true, nil
}

func save(store Store, s *Session) error {
	s.LastActivity = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.ID, err)
	}
	return store.Put(key(s.ID), data, ttl)
}

// buyingIntentPatterns and comparisonPatterns drive journey-stage derivation.
var (
	buyingIntentPatterns = []string{"buy", "purchase", "order", "add to cart", "checkout"}
	comparisonPatterns   = []string{"vs", "compare", "versus", "difference between"}
)

var interestPatterns = map[string][]string{
	"smoothies":     {"smoothie", "fruit"},
	"accessibility": {"arthritis", "easy grip", "senior"},
	"commercial":    {"commercial", "restaurant", "bulk"},
	"quiet":         {"quiet", "noise", "apartment"},
}

// AddQuery prepends query to the bounded history, refreshes the derived
// profile, recomputes journeyStage, and persists the session.
func AddQuery(store Store, s *Session, query, queryType, generatedURL string) error {
	record := QueryRecord{Query: query, Type: queryType, GeneratedURL: generatedURL, At: time.Now().UTC()}
	s.Queries = append([]QueryRecord{record}, s.Queries...)
	if len(s.Queries) > maxQueries {
		s.Queries = s.Queries[:maxQueries]
	}

	s.Profile.Interests = deriveInterests(s.Queries)
	s.JourneyStage = deriveJourneyStage(s.Queries, s.Conversions > 0)

	return save(store, s)
}

// RecordConversion marks a conversion against url and persists the session.
// Once a conversion is recorded, journeyStage never moves back below deciding.
func RecordConversion(store Store, s *Session, url string) error {
	s.Conversions++
	s.JourneyStage = StageDeciding
	return save(store, s)
}

func deriveJourneyStage(queries []QueryRecord, hasConversion bool) JourneyStage {
	window := queries
	if len(window) > journeyWindow {
		window = window[:journeyWindow]
	}

	if hasConversion {
		return StageDeciding
	}
	for _, q := range window {
		lower := strings.ToLower(q.Query)
		if matchAny(lower, buyingIntentPatterns) {
			return StageDeciding
		}
	}
	for _, q := range window {
		lower := strings.ToLower(q.Query)
		if matchAny(lower, comparisonPatterns) {
			return StageComparing
		}
	}
	if len(queries) >= 3 {
		return StageComparing
	}
	return StageExploring
}

// deriveInterests returns the matched interest tags sorted alphabetically,
// since map iteration order would otherwise make Profile.Interests
// nondeterministic across runs for the same query history.
func deriveInterests(queries []QueryRecord) []string {
	seen := make(map[string]bool)
	for _, q := range queries {
		lower := strings.ToLower(q.Query)
		for tag, patterns := range interestPatterns {
			if !seen[tag] && matchAny(lower, patterns) {
				seen[tag] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func matchAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func newSessionID() (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	out := make([]byte, idLength)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out), nil
}
