package generate

import (
	"strings"

	"github.com/paolomoz/pagegen/internal/classify"
	"github.com/paolomoz/pagegen/internal/knowledge"
	"github.com/paolomoz/pagegen/internal/logging"
	"github.com/paolomoz/pagegen/internal/render"
)

const jaccardThreshold = 0.7

// correctURLs rewrites every card atom's Href in place against the
// retrieved set: exact match passes the canonical URL through untouched;
// otherwise a fuzzy (token-Jaccard) match is attempted, then a keyword
// fallback; each correction is logged with its match type, and fuzzy
// matches also with their Jaccard score (keyword fallbacks carry no score).
func correctURLs(atoms []render.Atom, retrieved knowledge.Retrieved, log *logging.Logger) {
	canonical := canonicalURLs(retrieved)
	if len(canonical) == 0 {
		return
	}

	for i, a := range atoms {
		if a.Kind != render.KindCard || a.Href == "" {
			continue
		}
		if canonical[a.Href] {
			continue // already canonical, pass through untouched
		}

		if url, score, ok := fuzzyMatch(a.Href, canonical); ok {
			if log != nil {
				log.Info("url correction: fuzzy match %q -> %q (jaccard=%.2f)", a.Href, url, score)
			}
			atoms[i].Href = url
			continue
		}

		if url, ok := keywordFallback(a.Title+" "+a.Body, retrieved); ok {
			if log != nil {
				log.Info("url correction: keyword fallback %q -> %q", a.Href, url)
			}
			atoms[i].Href = url
			continue
		}

		if log != nil {
			log.Warn("url correction: no match for model-authored href %q, leaving as-is", a.Href)
		}
	}
}

func canonicalURLs(r knowledge.Retrieved) map[string]bool {
	set := make(map[string]bool)
	for _, p := range r.Products {
		if p.URL != "" {
			set[p.URL] = true
		}
	}
	for _, f := range r.Faqs {
		if f.URL != "" {
			set[f.URL] = true
		}
	}
	for _, rec := range r.Recipes {
		if rec.URL != "" {
			set[rec.URL] = true
		}
	}
	for _, v := range r.Videos {
		if v.URL != "" {
			set[v.URL] = true
		}
	}
	return set
}

// fuzzyMatch finds the canonical URL whose token-Jaccard similarity to
// candidate is highest, accepting it only if that similarity is >= 0.7.
func fuzzyMatch(candidate string, canonical map[string]bool) (string, float64, bool) {
	candTokens := tokenSet(candidate)
	var best string
	var bestScore float64
	for url := range canonical {
		score := jaccard(candTokens, tokenSet(url))
		if score > bestScore {
			bestScore = score
			best = url
		}
	}
	if bestScore >= jaccardThreshold {
		return best, bestScore, true
	}
	return "", 0, false
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	s = strings.ToLower(s)
	s = strings.NewReplacer("/", " ", "-", " ", "_", " ", ".", " ", "?", " ", "=", " ").Replace(s)
	tokens := strings.Fields(s)
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

// keywordFallback picks the first knowledge record whose display text
// shares any keyword with text.
func keywordFallback(text string, r knowledge.Retrieved) (string, bool) {
	terms := tokenSet(text)
	for _, p := range r.Products {
		if shareAny(terms, tokenSet(p.Name)) {
			return p.URL, true
		}
	}
	for _, f := range r.Faqs {
		if shareAny(terms, tokenSet(f.Question)) {
			return f.URL, true
		}
	}
	return "", false
}

func shareAny(a, b map[string]bool) bool {
	for t := range a {
		if b[t] {
			return true
		}
	}
	return false
}

// deriveRecommendedProduct is deterministically re-derived from flags
// rather than trusted from the model.
func deriveRecommendedProduct(c classify.Classification, r knowledge.Retrieved) *knowledge.Product {
	if len(r.Products) == 0 {
		return nil
	}

	switch {
	case c.HasFlag(classify.FlagAccessibility):
		for i, p := range r.Products {
			if p.Touchscreen {
				return &r.Products[i]
			}
		}
	case c.HasFlag(classify.FlagNoise):
		best := &r.Products[0]
		for i := 1; i < len(r.Products); i++ {
			p := &r.Products[i]
			if p.Decibels > 0 && (best.Decibels == 0 || p.Decibels < best.Decibels) {
				best = p
			}
		}
		return best
	case c.HasFlag(classify.FlagBudget) && c.Budget > 0:
		var best *knowledge.Product
		for i, p := range r.Products {
			if p.Price <= float64(c.Budget) {
				if best == nil || p.Price > best.Price {
					best = &r.Products[i]
				}
			}
		}
		if best != nil {
			return best
		}
	}

	return &r.Products[0]
}
