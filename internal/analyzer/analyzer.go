package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/paolomoz/pagegen/internal/logging"
)

const rubricPrompt = `You are a web page quality reviewer. Score the page on a 0-100 scale for each dimension and respond with a single strict JSON object only, no prose:
{"overallScore":0,"contentScore":0,"layoutScore":0,"conversionScore":0,"summary":"","strengths":[],"improvements":[],"topIssues":[],"suggestions":[{"category":"content|layout|conversion","issue":"","suggestion":"","impact":"low|medium|high","effort":"low|medium|high"}]}`

// Analyze fans the page out to every configured provider in parallel, each
// going through C1's Claude preset, tolerantly parses each response, and
// synthesizes the successful verdicts into one.
func Analyze(ctx context.Context, pageText, query, pageURL string, log *logging.Logger) Verdict {
	return analyzeWith(ctx, defaultProviders(), pageText, query, pageURL, log)
}

func analyzeWith(ctx context.Context, providers []provider, pageText, query, pageURL string, log *logging.Logger) Verdict {
	prompt := fmt.Sprintf("%s\n\nPage URL: %s\nOriginal query: %s\n\nPage content:\n%s", rubricPrompt, pageURL, query, pageText)

	results := make([]ModelResult, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			raw, err := p.Call(gctx, prompt)
			if err != nil {
				results[i] = ModelResult{Model: p.Name(), Success: false, Error: err}
				if log != nil {
					log.Warn("analyzer provider %s failed: %v", p.Name(), err)
				}
				return nil
			}
			v, perr := parseVerdict(raw)
			if perr != nil {
				results[i] = ModelResult{Model: p.Name(), Success: false, ParseError: perr}
				if log != nil {
					log.Warn("analyzer provider %s returned unparseable output: %v", p.Name(), perr)
				}
				return nil
			}
			results[i] = ModelResult{Model: p.Name(), Success: true, Verdict: v}
			return nil
		})
	}
	// errgroup.Go never returns a non-nil error here; individual provider
	// failures are recorded per-result rather than aborting the fan-out.
	_ = g.Wait()

	var succeeded []*Verdict
	for _, r := range results {
		if r.Success {
			succeeded = append(succeeded, r.Verdict)
		}
	}

	switch len(succeeded) {
	case 0:
		return allFailedVerdict()
	case 1:
		return *succeeded[0]
	default:
		return synthesize(ctx, succeeded, pageText, log)
	}
}

// synthesize prompts a reconciler LLM with all successful verdicts; on
// reconciler failure it falls back to deterministic average-scores synthesis.
func synthesize(ctx context.Context, verdicts []*Verdict, pageText string, log *logging.Logger) Verdict {
	if merged, err := reconcile(ctx, verdicts, pageText); err == nil {
		return merged
	} else if log != nil {
		log.Warn("analyzer reconciler failed, falling back to average-scores synthesis: %v", err)
	}
	return averageScores(verdicts)
}

// reconcilerProvider is the model used for the reconciler call; overridable
// in tests so synthesis can be exercised without a live network call.
var reconcilerProvider provider = claudeProvider{model: "claude-sonnet-4-5"}

func reconcile(ctx context.Context, verdicts []*Verdict, pageText string) (Verdict, error) {
	var b strings.Builder
	b.WriteString("You are reconciling multiple independent page review verdicts into one. ")
	b.WriteString("Respond with a single strict JSON object in the same shape as the inputs, no prose.\n\n")
	for i, v := range verdicts {
		fmt.Fprintf(&b, "Verdict %d: overall=%d content=%d layout=%d conversion=%d summary=%q\n", i+1, v.OverallScore, v.ContentScore, v.LayoutScore, v.ConversionScore, v.Summary)
	}
	b.WriteString("\nPage content:\n")
	b.WriteString(pageText)

	raw, err := reconcilerProvider.Call(ctx, b.String())
	if err != nil {
		return Verdict{}, err
	}
	v, err := parseVerdict(raw)
	if err != nil {
		return Verdict{}, err
	}
	return *v, nil
}

// averageScores implements the deterministic fallback: integer-rounded mean
// of each numeric score, deduped-and-capped text lists, and suggestions
// deduped by the lowercased first 50 characters of Issue, prioritized by
// impact (high=3, medium=2, low=1) x2 + effort_inverse (low=3, medium=2, high=1).
func averageScores(verdicts []*Verdict) Verdict {
	n := len(verdicts)
	var sumOverall, sumContent, sumLayout, sumConversion int
	var strengths, improvements, topIssues []string
	var suggestions []Suggestion
	for _, v := range verdicts {
		sumOverall += v.OverallScore
		sumContent += v.ContentScore
		sumLayout += v.LayoutScore
		sumConversion += v.ConversionScore
		strengths = append(strengths, v.Strengths...)
		improvements = append(improvements, v.Improvements...)
		topIssues = append(topIssues, v.TopIssues...)
		suggestions = append(suggestions, v.Suggestions...)
	}

	return Verdict{
		OverallScore:    roundMean(sumOverall, n),
		ContentScore:    roundMean(sumContent, n),
		LayoutScore:     roundMean(sumLayout, n),
		ConversionScore: roundMean(sumConversion, n),
		Summary:         fmt.Sprintf("Synthesized from %d independent reviews.", n),
		Strengths:       dedupCap(strengths, capList),
		Improvements:    dedupCap(improvements, capList),
		TopIssues:       dedupCap(topIssues, capList),
		Suggestions:     dedupSuggestions(suggestions, capSuggestions),
	}
}

func roundMean(sum, n int) int {
	if n == 0 {
		return 0
	}
	if sum >= 0 {
		return (sum + n/2) / n
	}
	return -((-sum + n/2) / n)
}

func dedupCap(items []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range items {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

var impactWeight = map[string]int{"high": 3, "medium": 2, "low": 1}
var effortInverseWeight = map[string]int{"low": 3, "medium": 2, "high": 1}

func suggestionPriority(s Suggestion) int {
	return impactWeight[strings.ToLower(s.Impact)]*2 + effortInverseWeight[strings.ToLower(s.Effort)]
}

func dedupSuggestions(items []Suggestion, limit int) []Suggestion {
	seen := make(map[string]bool)
	var out []Suggestion
	for _, s := range items {
		key := strings.ToLower(s.Issue)
		if len(key) > 50 {
			key = key[:50]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return suggestionPriority(out[i]) > suggestionPriority(out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
