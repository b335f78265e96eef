package analyzer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
var braceSpanRe = regexp.MustCompile(`(?s)\{.*\}`)
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// parseVerdict runs the four-strategy tolerant ladder over raw model
// output: direct parse, fenced-code-block extraction, first brace-span
// extraction, then a common-fix pass (trailing commas, single quotes)
// applied to the brace span. The first candidate that decodes into a
// Verdict carrying all four numeric scores is accepted.
func parseVerdict(raw string) (*Verdict, error) {
	candidates := []string{raw}

	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}

	span := braceSpanRe.FindString(raw)
	if span != "" {
		candidates = append(candidates, span)
		candidates = append(candidates, commonFix(span))
	}

	var lastErr error
	for _, c := range candidates {
		v, err := decodeVerdict(c)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON object found in model output")
	}
	return nil, lastErr
}

func decodeVerdict(s string) (*Verdict, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty candidate")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, err
	}
	for _, k := range []string{"overallScore", "contentScore", "layoutScore", "conversionScore"} {
		if _, ok := fields[k]; !ok {
			return nil, fmt.Errorf("decoded object is missing %s", k)
		}
	}
	var v Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// commonFix repairs the two most frequent model JSON mistakes: trailing
// commas before a closing bracket, and single-quoted strings.
func commonFix(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "'", "\"")
	return s
}
