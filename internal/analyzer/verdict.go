// Package analyzer runs the multi-agent page critique: three providers
// score an already-generated page in parallel, and their verdicts are
// reconciled (or averaged) into one synthesized verdict.
package analyzer

// Suggestion is one actionable improvement tied to a category and an
// impact/effort pair used for prioritization during synthesis.
type Suggestion struct {
	Category   string `json:"category"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
	Impact     string `json:"impact"`
	Effort     string `json:"effort"`
}

// Verdict is the analyzer's contracted output shape, produced by each
// provider individually and by the synthesis step.
type Verdict struct {
	OverallScore    int          `json:"overallScore"`
	ContentScore    int          `json:"contentScore"`
	LayoutScore     int          `json:"layoutScore"`
	ConversionScore int          `json:"conversionScore"`
	Summary         string       `json:"summary"`
	Strengths       []string     `json:"strengths"`
	Improvements    []string     `json:"improvements"`
	TopIssues       []string     `json:"topIssues"`
	Suggestions     []Suggestion `json:"suggestions"`
}

// ModelResult is the per-provider outcome of a single analyzer call.
type ModelResult struct {
	Model      string
	Success    bool
	Verdict    *Verdict
	ParseError error
	Error      error
}

const capList = 5
const capSuggestions = 10

func allFailedVerdict() Verdict {
	return Verdict{Summary: "All analysis agents failed"}
}
