// Package knowledge implements the read-through retrieval layer over the
// product/FAQ/recipe/video knowledge base: term expansion, classification-
// aware scoring, and top-K selection.
package knowledge

import (
	"sort"
	"strings"

	"github.com/paolomoz/pagegen/internal/classify"
	"github.com/paolomoz/pagegen/internal/logging"
)

// Product is a sellable item in the knowledge base.
type Product struct {
	ID            string
	Name          string
	URL           string
	Features      string
	Price         float64
	Decibels      float64
	Wattage       float64
	Accessibility bool
	Touchscreen   bool
	Tags          map[string]bool
}

type Faq struct {
	ID       string
	Question string
	Answer   string
	URL      string
}

type Recipe struct {
	ID       string
	Title    string
	URL      string
	Features string
}

type Video struct {
	ID       string
	Title    string
	URL      string
	Features string
}

// Retrieved is the read-only result bundle handed to the generator.
type Retrieved struct {
	Products []Product
	Faqs     []Faq
	Recipes  []Recipe
	Videos   []Video
}

// TopK controls how many of each kind are returned.
var TopK = struct {
	Products, Faqs, Videos, Recipes int
}{Products: 8, Faqs: 8, Videos: 5, Recipes: 10}

// synonyms statically expands a query's keyword set before matching.
var synonyms = map[string][]string{
	"arthritis": {"easy", "grip", "ergonomic", "senior", "mobility"},
	"quiet":     {"noise", "apartment", "low-decibel"},
	"budget":    {"cheap", "affordable", "value"},
	"smoothie":  {"blend", "fruit", "ingredients"},
}

// Store is the in-memory (or read-through-cached) knowledge base.
type Store struct {
	Products []Product
	Faqs     []Faq
	Recipes  []Recipe
	Videos   []Video
}

// Retrieve scores and selects the top-K candidates of each kind for the
// given classification and query, logging a retrieval-gap warning for any
// kind a query's type would expect but that returned nothing.
func Retrieve(store *Store, c classify.Classification, query string, log *logging.Logger) Retrieved {
	terms := expandTerms(c.Keywords, query)

	candidates := store.Products
	if c.HasFlag(classify.FlagBudget) && c.Budget > 0 && hasAffordable(candidates, c.Budget) {
		candidates = filterWithinBudgetCeiling(candidates, c.Budget)
	}

	products := make([]scored[Product], 0, len(candidates))
	for _, p := range candidates {
		s := textScore(terms, p.Name+" "+p.Features)
		s += productBoost(p, c)
		products = append(products, scored[Product]{p, s})
	}
	topProducts := topK(products, TopK.Products, func(p Product) string { return p.ID })

	faqs := make([]scored[Faq], 0, len(store.Faqs))
	for _, f := range store.Faqs {
		faqs = append(faqs, scored[Faq]{f, textScore(terms, f.Question+" "+f.Answer)})
	}
	topFaqs := topK(faqs, TopK.Faqs, func(f Faq) string { return f.ID })

	recipes := make([]scored[Recipe], 0, len(store.Recipes))
	for _, r := range store.Recipes {
		recipes = append(recipes, scored[Recipe]{r, textScore(terms, r.Title+" "+r.Features)})
	}
	topRecipes := topK(recipes, TopK.Recipes, func(r Recipe) string { return r.ID })

	videos := make([]scored[Video], 0, len(store.Videos))
	for _, v := range store.Videos {
		videos = append(videos, scored[Video]{v, textScore(terms, v.Title+" "+v.Features)})
	}
	topVideos := topK(videos, TopK.Videos, func(v Video) string { return v.ID })

	result := Retrieved{Products: topProducts, Faqs: topFaqs, Recipes: topRecipes, Videos: topVideos}

	if log != nil {
		if c.Type == classify.TypeProduct && len(result.Products) == 0 {
			log.Warn("retrieval-gap: no products matched query, flags=%v", c.Flags)
		}
		if c.Type == classify.TypeRecipe && len(result.Recipes) == 0 {
			log.Warn("retrieval-gap: no recipes matched query, flags=%v", c.Flags)
		}
	}

	return result
}

func hasAffordable(products []Product, budget int) bool {
	for _, p := range products {
		if p.Price <= float64(budget) {
			return true
		}
	}
	return false
}

// filterWithinBudgetCeiling drops products priced above 1.2x budget once a
// cheaper alternative exists, per the budget-ceiling invariant.
func filterWithinBudgetCeiling(products []Product, budget int) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if p.Price <= 1.2*float64(budget) {
			out = append(out, p)
		}
	}
	return out
}

func productBoost(p Product, c classify.Classification) float64 {
	var boost float64
	if c.HasFlag(classify.FlagAccessibility) && p.Accessibility {
		boost += 2
	}
	if c.HasFlag(classify.FlagNoise) && p.Decibels > 0 {
		boost += 100 / p.Decibels
	}
	if c.HasFlag(classify.FlagBudget) && c.Budget > 0 {
		switch {
		case p.Price <= float64(c.Budget):
			boost += 0.5
		case p.Price > 1.2*float64(c.Budget):
			boost -= 1
		}
	}
	return boost
}

func expandTerms(keywords map[string]bool, query string) map[string]bool {
	terms := make(map[string]bool, len(keywords))
	for k := range keywords {
		terms[k] = true
	}
	lower := strings.ToLower(query)
	for trigger, expansions := range synonyms {
		if strings.Contains(lower, trigger) {
			for _, e := range expansions {
				terms[e] = true
			}
		}
	}
	return terms
}

func textScore(terms map[string]bool, text string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for term := range terms {
		if term != "" && strings.Contains(lower, term) {
			score++
		}
	}
	return score
}

type scored[T any] struct {
	value T
	score float64
}

// topK sorts by score descending, then by stable id ascending, truncating to k.
func topK[T any](items []scored[T], k int, idOf func(T) string) []T {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return idOf(items[i].value) < idOf(items[j].value)
	})
	if len(items) > k {
		items = items[:k]
	}
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.value
	}
	return out
}
