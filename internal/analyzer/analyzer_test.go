package analyzer

import (
	"context"
	"fmt"
	"testing"
)

type fakeProvider struct {
	name string
	out  string
	err  error
}

func (f fakeProvider) Name() string { return f.name }

func (f fakeProvider) Call(ctx context.Context, prompt string) (string, error) {
	return f.out, f.err
}

const validJSON = `{"overallScore":80,"contentScore":75,"layoutScore":85,"conversionScore":70,"summary":"Solid page.","strengths":["Clear hero"],"improvements":["Add reviews"],"topIssues":["Missing FAQ"],"suggestions":[{"category":"content","issue":"Thin body copy","suggestion":"Expand product descriptions","impact":"high","effort":"low"}]}`
const fencedJSON = "Here is my review:\n```json\n" + `{"overallScore":90,"contentScore":85,"layoutScore":95,"conversionScore":80,"summary":"Great page."}` + "\n```"
const proseJSON = `Sure, I looked at it. My assessment: {"overallScore":70,"contentScore":65,"layoutScore":75,"conversionScore":60,"summary":"Decent."} Let me know if you want more detail.`

func TestParseVerdictDirectJSON(t *testing.T) {
	v, err := parseVerdict(validJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.OverallScore != 80 || v.Summary != "Solid page." {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestParseVerdictFencedBlock(t *testing.T) {
	v, err := parseVerdict(fencedJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.OverallScore != 90 {
		t.Fatalf("expected fenced block extraction, got %+v", v)
	}
}

func TestParseVerdictProseEmbedded(t *testing.T) {
	v, err := parseVerdict(proseJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.OverallScore != 70 {
		t.Fatalf("expected brace-span extraction, got %+v", v)
	}
}

func TestParseVerdictCommonFixTrailingCommaAndQuotes(t *testing.T) {
	raw := `{'overallScore':60,'contentScore':60,'layoutScore':60,'conversionScore':60, 'summary':'ok',}`
	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.OverallScore != 60 {
		t.Fatalf("expected common-fix pass to decode, got %+v", v)
	}
}

func TestParseVerdictRejectsNonObject(t *testing.T) {
	if _, err := parseVerdict("not json at all, no braces here"); err == nil {
		t.Fatalf("expected error for unparseable input")
	}
}

func TestAnalyzeAllProvidersFail(t *testing.T) {
	providers := []provider{
		fakeProvider{name: "a", err: fmt.Errorf("boom")},
		fakeProvider{name: "b", err: fmt.Errorf("boom")},
		fakeProvider{name: "c", err: fmt.Errorf("boom")},
	}
	v := analyzeWith(context.Background(), providers, "page text", "query", "https://example.com/page", nil)
	if v.Summary != "All analysis agents failed" {
		t.Fatalf("expected all-failed verdict, got %+v", v)
	}
	if v.OverallScore != 0 {
		t.Fatalf("expected zero scores, got %+v", v)
	}
}

func TestAnalyzeSingleSuccessPassesThrough(t *testing.T) {
	providers := []provider{
		fakeProvider{name: "a", out: validJSON},
		fakeProvider{name: "b", err: fmt.Errorf("boom")},
		fakeProvider{name: "c", out: "garbage, no json"},
	}
	v := analyzeWith(context.Background(), providers, "page text", "query", "https://example.com/page", nil)
	if v.OverallScore != 80 {
		t.Fatalf("expected the single successful verdict passed through, got %+v", v)
	}
}

func TestAnalyzeMultipleSuccessFallsBackToAverageOnReconcilerFailure(t *testing.T) {
	orig := reconcilerProvider
	reconcilerProvider = fakeProvider{name: "reconciler", err: fmt.Errorf("reconciler unavailable")}
	defer func() { reconcilerProvider = orig }()

	providers := []provider{
		fakeProvider{name: "a", out: validJSON},  // overall 80
		fakeProvider{name: "b", out: fencedJSON}, // overall 90
		fakeProvider{name: "c", out: proseJSON},  // overall 70
	}
	v := analyzeWith(context.Background(), providers, "page text", "query", "https://example.com/page", nil)

	if v.OverallScore != 80 {
		t.Fatalf("expected integer-rounded mean of 80/90/70 = 80, got %d", v.OverallScore)
	}
}

func TestAnalyzeMultipleSuccessUsesReconcilerWhenAvailable(t *testing.T) {
	orig := reconcilerProvider
	reconcilerProvider = fakeProvider{name: "reconciler", out: `{"overallScore":88,"contentScore":82,"layoutScore":91,"conversionScore":79,"summary":"Reconciled."}`}
	defer func() { reconcilerProvider = orig }()

	providers := []provider{
		fakeProvider{name: "a", out: validJSON},
		fakeProvider{name: "b", out: fencedJSON},
	}
	v := analyzeWith(context.Background(), providers, "page text", "query", "https://example.com/page", nil)

	if v.OverallScore != 88 || v.Summary != "Reconciled." {
		t.Fatalf("expected reconciler verdict to win, got %+v", v)
	}
}

func TestRoundMean(t *testing.T) {
	cases := []struct {
		sum, n, want int
	}{
		{240, 3, 80},
		{241, 3, 80},
		{242, 3, 81},
		{0, 3, 0},
		{5, 0, 0},
	}
	for _, c := range cases {
		if got := roundMean(c.sum, c.n); got != c.want {
			t.Fatalf("roundMean(%d, %d) = %d, want %d", c.sum, c.n, got, c.want)
		}
	}
}

func TestDedupCapStopsAtLimit(t *testing.T) {
	out := dedupCap([]string{"A", "a", "B", "C", "D", "E", "F"}, 3)
	if len(out) != 3 {
		t.Fatalf("expected cap at 3, got %v", out)
	}
}

func TestDedupSuggestionsPrioritizesHighImpactLowEffort(t *testing.T) {
	items := []Suggestion{
		{Issue: "low priority item", Impact: "low", Effort: "high"},
		{Issue: "high priority item", Impact: "high", Effort: "low"},
	}
	out := dedupSuggestions(items, 10)
	if out[0].Issue != "high priority item" {
		t.Fatalf("expected high-impact/low-effort suggestion first, got %+v", out)
	}
}

func TestDedupSuggestionsDedupesByIssuePrefix(t *testing.T) {
	long := "this is a very long issue description that goes past fifty characters for sure"
	items := []Suggestion{
		{Issue: long, Impact: "low", Effort: "low"},
		{Issue: long + " extra trailing detail", Impact: "high", Effort: "low"},
	}
	out := dedupSuggestions(items, 10)
	if len(out) != 1 {
		t.Fatalf("expected dedup by first 50 chars of issue, got %d entries", len(out))
	}
}
