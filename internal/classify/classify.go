// Package classify turns a free-text query into a Classification: a type
// label with confidence plus orthogonal context flags (accessibility,
// noise, medical, budget, allergy).
package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Type is the closed set of query intents the renderer and generator key off.
type Type string

const (
	TypeProduct    Type = "product"
	TypeRecipe     Type = "recipe"
	TypeBlog       Type = "blog"
	TypeSupport    Type = "support"
	TypeCommercial Type = "commercial"
	TypeGeneral    Type = "general"
)

// Flag is an orthogonal context bit independent of Type.
type Flag string

const (
	FlagAccessibility Flag = "accessibility"
	FlagNoise         Flag = "noise"
	FlagMedical       Flag = "medical"
	FlagBudget        Flag = "budget"
	FlagAllergy       Flag = "allergy"
)

// Classification is the pure output of Classify.
type Classification struct {
	Type       Type
	Confidence float64
	Keywords   map[string]bool
	Flags      map[Flag]bool
	Budget     int // 0 means unset
}

// HasFlag reports whether f was matched.
func (c Classification) HasFlag(f Flag) bool { return c.Flags[f] }

// typePatterns maps each type to the substrings whose presence votes for it.
// When two types score equally, the type whose longest matched pattern is
// longer (the more specific match) wins the tie.
var typePatterns = map[Type][]string{
	TypeProduct: {
		"vitamix", "blender", "which model", "should i buy", "buy", "price",
		"vs", "compare", "best blender", "recommend",
	},
	TypeRecipe: {
		"recipe", "how do i make", "smoothie", "ingredients", "blend together",
	},
	TypeBlog: {
		"history of", "guide to", "why does", "article about",
	},
	TypeSupport: {
		"not working", "broken", "troubleshoot", "warranty", "repair", "error code",
	},
	TypeCommercial: {
		"commercial", "restaurant", "bulk", "wholesale", "food truck",
	},
}

var (
	accessibilityPatterns = []string{"arthritis", "easy grip", "one-handed", "senior", "disability", "limited mobility"}
	noisePatterns         = []string{"quiet", "noise", "apartment", "loud", "decibel"}
	medicalPatterns       = []string{"doctor", "diet", "health condition", "allerg", "medical", "recovery"}
	budgetPatterns        = []string{"budget", "cheap", "affordable", "under $", "inexpensive"}
	allergyPatterns       = []string{"allerg", "gluten", "dairy-free", "nut-free"}
)

var budgetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+)`),
	regexp.MustCompile(`(?i)(\d+)\s*dollars?`),
	regexp.MustCompile(`(?i)budget[^\d]*(\d+)`),
}

// Classify is a pure function from query to Classification.
func Classify(query string) Classification {
	lower := strings.ToLower(query)
	keywords := tokenize(lower)

	scores := make(map[Type]float64, len(typePatterns))
	bestSpecificity := make(map[Type]int)
	for t, patterns := range typePatterns {
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				// Longer patterns are more specific (phrase matches like
				// "should i buy" say more than a bare "buy"), so they earn
				// a larger share of the vote rather than a flat +1.
				scores[t] += 1 + float64(len(p))/10
				if len(p) > bestSpecificity[t] {
					bestSpecificity[t] = len(p)
				}
			}
		}
	}

	flags := make(map[Flag]bool)
	if matchAny(lower, accessibilityPatterns) {
		flags[FlagAccessibility] = true
		scores[TypeProduct] += 2.0
	}
	if matchAny(lower, noisePatterns) {
		flags[FlagNoise] = true
		scores[TypeProduct] += 2.0
	}
	if matchAny(lower, medicalPatterns) {
		flags[FlagMedical] = true
		scores[TypeProduct] += 1.5
	}
	if matchAny(lower, budgetPatterns) {
		flags[FlagBudget] = true
		scores[TypeProduct] += 1.5
	}
	if matchAny(lower, allergyPatterns) {
		flags[FlagAllergy] = true
	}

	budget := extractBudget(query)

	winner, winnerScore, runnerUpScore := pickWinner(scores, bestSpecificity)

	var confidence float64
	if winnerScore == 0 && runnerUpScore == 0 {
		winner = TypeGeneral
		confidence = 0.5
	} else {
		confidence = winnerScore / (winnerScore + runnerUpScore + 1)
		if confidence > 1 {
			confidence = 1
		}
	}

	return Classification{
		Type:       winner,
		Confidence: confidence,
		Keywords:   keywords,
		Flags:      flags,
		Budget:     budget,
	}
}

func pickWinner(scores map[Type]float64, specificity map[Type]int) (Type, float64, float64) {
	var winner Type = TypeGeneral
	var winnerScore, runnerUp float64
	winnerSpecificity := -1

	for t, score := range scores {
		if score > winnerScore || (score == winnerScore && specificity[t] > winnerSpecificity) {
			runnerUp = winnerScore
			winner = t
			winnerScore = score
			winnerSpecificity = specificity[t]
		} else if score > runnerUp {
			runnerUp = score
		}
	}
	return winner, winnerScore, runnerUp
}

func matchAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func extractBudget(query string) int {
	for _, re := range budgetRegexes {
		if m := re.FindStringSubmatch(query); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 0
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(lower string) map[string]bool {
	tokens := tokenPattern.FindAllString(lower, -1)
	out := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		out[tok] = true
	}
	return out
}
