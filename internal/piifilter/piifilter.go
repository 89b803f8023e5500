// Package piifilter detects and sanitizes personally identifiable
// information in text before it is sent to a non-local LLM provider (C5).
package piifilter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind identifies a category of detected PII.
type Kind string

const (
	KindEmail      Kind = "EMAIL"
	KindPhone      Kind = "PHONE"
	KindSSN        Kind = "SSN"
	KindCreditCard Kind = "CREDIT_CARD"
	KindAddress    Kind = "ADDRESS"
	KindIPv4       Kind = "IP_ADDRESS"
)

// Strategy selects how detected PII is handled.
type Strategy string

const (
	// StrategyRedact replaces PII with "[REDACTED_<KIND>]" placeholders.
	StrategyRedact Strategy = "redact"
	// StrategyTokenize replaces PII with reversible "__PII_TOKEN_<n>__" tokens.
	StrategyTokenize Strategy = "tokenize"
	// StrategyBlock refuses to return filtered text at all if PII is found.
	StrategyBlock Strategy = "block"
)

// ErrBlocked is returned by Filter when the strategy is Block and at least
// one PII detection occurred.
type ErrBlocked struct {
	Kinds []Kind
}

func (e *ErrBlocked) Error() string {
	names := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("piifilter: detected %d PII fields: %s", len(e.Kinds), strings.Join(names, ", "))
}

// Detection is one instance of PII found in text.
type Detection struct {
	Kind  Kind
	Start int
	End   int
	Value string
}

// Result is the outcome of filtering one piece of text.
type Result struct {
	FilteredText string
	Detections   []Detection
	TokenMap     map[string]string // only populated for StrategyTokenize
}

// HasPII reports whether any detection occurred.
func (r Result) HasPII() bool { return len(r.Detections) > 0 }

type pattern struct {
	kind  Kind
	regex *regexp.Regexp
}

// defaultPatterns covers five regex-backed kinds. Address has no dedicated
// pattern — it exists as an enum member for API completeness
// (Finding.extracted_data carries address strings pulled from structured
// broker listing markup, not from free-text regex matching) but is never
// produced by Filter.
func defaultPatterns() []pattern {
	return []pattern{
		{kind: KindEmail, regex: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{kind: KindPhone, regex: regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?([0-9]{3})\)?[-.\s]?([0-9]{3})[-.\s]?([0-9]{4})\b`)},
		{kind: KindSSN, regex: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{kind: KindCreditCard, regex: regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
		{kind: KindIPv4, regex: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	}
}

// Filter scans text for PII and applies strategy. A Filter is safe for
// concurrent use: it holds only compiled, read-only regexes.
type Filter struct {
	patterns []pattern
	strategy Strategy
}

// New returns a Filter with the default patterns and StrategyRedact.
func New() *Filter {
	return &Filter{patterns: defaultPatterns(), strategy: StrategyRedact}
}

// NewWithStrategy returns a Filter with the default patterns and the given
// strategy.
func NewWithStrategy(strategy Strategy) *Filter {
	return &Filter{patterns: defaultPatterns(), strategy: strategy}
}

// Filter scans text and applies the configured strategy. It finds at most
// one match per kind — the first occurrence in the text — matching the
// reference detector's single-match-per-pattern behavior exactly.
func (f *Filter) Filter(text string) (Result, error) {
	var detections []Detection
	for _, p := range f.patterns {
		loc := p.regex.FindStringIndex(text)
		if loc == nil {
			continue
		}
		detections = append(detections, Detection{
			Kind:  p.kind,
			Start: loc[0],
			End:   loc[1],
			Value: text[loc[0]:loc[1]],
		})
	}

	if len(detections) == 0 {
		return Result{FilteredText: text}, nil
	}

	switch f.strategy {
	case StrategyBlock:
		kinds := make([]Kind, len(detections))
		for i, d := range detections {
			kinds[i] = d.Kind
		}
		return Result{}, &ErrBlocked{Kinds: kinds}
	case StrategyTokenize:
		filtered, tokenMap := applyTokenization(text, detections)
		return Result{FilteredText: filtered, Detections: detections, TokenMap: tokenMap}, nil
	default:
		filtered := applyRedaction(text, detections)
		return Result{FilteredText: filtered, Detections: detections}, nil
	}
}

// applyRedaction substitutes "[REDACTED_<KIND>]" for each detection,
// working back-to-front so earlier byte offsets stay valid.
func applyRedaction(text string, detections []Detection) string {
	sorted := sortByStartDescending(detections)
	result := text
	for _, d := range sorted {
		placeholder := fmt.Sprintf("[REDACTED_%s]", d.Kind)
		result = result[:d.Start] + placeholder + result[d.End:]
	}
	return result
}

// applyTokenization substitutes "__PII_TOKEN_<i>__" for each detection,
// working back-to-front, and records the reverse mapping for Detokenize.
func applyTokenization(text string, detections []Detection) (string, map[string]string) {
	sorted := sortByStartDescending(detections)
	tokenMap := make(map[string]string, len(sorted))
	result := text
	for i, d := range sorted {
		token := fmt.Sprintf("__PII_TOKEN_%d__", i)
		tokenMap[token] = d.Value
		result = result[:d.Start] + token + result[d.End:]
	}
	return result, tokenMap
}

func sortByStartDescending(detections []Detection) []Detection {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })
	return sorted
}

// Detokenize replaces every token in text with its original value. Safe to
// call repeatedly; unknown tokens are left untouched.
func Detokenize(text string, tokenMap map[string]string) string {
	result := text
	for token, original := range tokenMap {
		result = strings.ReplaceAll(result, token, original)
	}
	return result
}
