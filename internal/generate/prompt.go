// Package generate builds the generation prompt, calls the content model,
// and corrects any model-authored URLs against the retrieved knowledge set.
package generate

import (
	"fmt"
	"strings"

	"github.com/paolomoz/pagegen/internal/classify"
	"github.com/paolomoz/pagegen/internal/knowledge"
	"github.com/paolomoz/pagegen/internal/session"
)

const factsCharBudget = 8000

var closedBlockNames = []string{"hero", "cards", "faq-accordion", "cta-section", "step-by-step"}

// BuildPrompt assembles the four fixed-order prompt sections.
func BuildPrompt(query string, c classify.Classification, retrieved knowledge.Retrieved, s *session.Session) string {
	var b strings.Builder
	b.WriteString(systemInstructions(c))
	b.WriteString("\n\n")
	b.WriteString(retrievedFactsSection(retrieved))
	b.WriteString("\n\n")
	b.WriteString(sessionContextSection(s))
	b.WriteString("\n\nQuery: ")
	b.WriteString(query)
	return b.String()
}

func systemInstructions(c classify.Classification) string {
	var tone []string
	if c.HasFlag(classify.FlagMedical) {
		tone = append(tone, "Use an empathetic, reassuring tone given the medical context.")
	}
	if c.HasFlag(classify.FlagBudget) {
		tone = append(tone, "Explain value for money clearly; the user is budget-conscious.")
	}
	if c.HasFlag(classify.FlagNoise) {
		tone = append(tone, "Steer toward quiet-operation models without overstating claims.")
	}
	if c.Type == classify.TypeCommercial {
		tone = append(tone, "Distinguish commercial-grade from consumer-grade options explicitly.")
	}

	return fmt.Sprintf(
		"You generate structured web page content. Respond with a single JSON object: "+
			`{"atoms":[...],"suggestedBlocks":[...],"recommendedProduct"?:...}`+". "+
			"Output JSON only, no prose, no markdown fences. "+
			"suggestedBlocks must be drawn only from this closed set: %s. %s",
		strings.Join(closedBlockNames, ", "), strings.Join(tone, " "),
	)
}

func retrievedFactsSection(r knowledge.Retrieved) string {
	var b strings.Builder
	b.WriteString("Retrieved facts:\n")
	for _, p := range r.Products {
		b.WriteString(fmt.Sprintf("- product %s: %s | $%.2f | %s\n", p.ID, p.Name, p.Price, p.URL))
	}
	for _, f := range r.Faqs {
		b.WriteString(fmt.Sprintf("- faq %s: %s\n", f.ID, f.Question))
	}
	for _, v := range r.Videos {
		b.WriteString(fmt.Sprintf("- video %s: %s | %s\n", v.ID, v.Title, v.URL))
	}

	facts := b.String()
	if len(facts) > factsCharBudget {
		facts = facts[:factsCharBudget]
	}
	return facts
}

func sessionContextSection(s *session.Session) string {
	if s == nil {
		return "Session context: none."
	}
	var recent []string
	for i, q := range s.Queries {
		if i >= 5 {
			break
		}
		recent = append(recent, q.Query)
	}
	return fmt.Sprintf("Session context: journeyStage=%s, recentQueries=[%s], interests=[%s]",
		s.JourneyStage, strings.Join(recent, "; "), strings.Join(s.Profile.Interests, ", "))
}
