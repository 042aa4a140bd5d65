package discovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrSchemaMismatch marks a completion whose JSON does not satisfy the
// expected response contract.
var ErrSchemaMismatch = errors.New("response does not match schema")

type wireResult struct {
	IsMatch           *bool    `json:"isMatch"`
	RelevanceScore    *float64 `json:"relevanceScore"`
	MatchType         *string  `json:"matchType"`
	Reasoning         *string  `json:"reasoning"`
	Signals           []string `json:"signals"`
	SuggestedKeywords []string `json:"suggestedKeywords"`
}

type wireQuick struct {
	IsMatch    *bool    `json:"isMatch"`
	Confidence *float64 `json:"confidence"`
}

// ParseResult turns raw completion text into a Result or an
// ErrSchemaMismatch describing the first violation.
func ParseResult(text string) (Result, error) {
	var w wireResult
	if err := decodeObject(text, &w); err != nil {
		return Result{}, err
	}

	switch {
	case w.IsMatch == nil:
		return Result{}, mismatch("missing isMatch")
	case w.RelevanceScore == nil:
		return Result{}, mismatch("missing relevanceScore")
	case w.MatchType == nil:
		return Result{}, mismatch("missing matchType")
	case w.Reasoning == nil:
		return Result{}, mismatch("missing reasoning")
	}

	if !inUnitRange(*w.RelevanceScore) {
		return Result{}, mismatch("relevanceScore %v outside [0,1]", *w.RelevanceScore)
	}

	matchType := MatchType(strings.ToLower(strings.TrimSpace(*w.MatchType)))
	if !matchType.Valid() {
		return Result{}, mismatch("unknown matchType %q", *w.MatchType)
	}
	if *w.IsMatch && matchType == MatchNone {
		return Result{}, mismatch("isMatch is true but matchType is none")
	}

	return Result{
		IsMatch:           *w.IsMatch,
		RelevanceScore:    *w.RelevanceScore,
		MatchType:         matchType,
		Reasoning:         strings.TrimSpace(*w.Reasoning),
		Signals:           nonNil(w.Signals),
		SuggestedKeywords: nonNil(w.SuggestedKeywords),
	}, nil
}

func ParseQuickResult(text string) (QuickResult, error) {
	var w wireQuick
	if err := decodeObject(text, &w); err != nil {
		return QuickResult{}, err
	}

	switch {
	case w.IsMatch == nil:
		return QuickResult{}, mismatch("missing isMatch")
	case w.Confidence == nil:
		return QuickResult{}, mismatch("missing confidence")
	case !inUnitRange(*w.Confidence):
		return QuickResult{}, mismatch("confidence %v outside [0,1]", *w.Confidence)
	}

	return QuickResult{IsMatch: *w.IsMatch, Confidence: *w.Confidence}, nil
}

func decodeObject(text string, v any) error {
	body := strings.TrimSpace(stripFence(text))
	if body == "" {
		return mismatch("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(v); err != nil {
		return mismatch("invalid JSON: %v", err)
	}
	if dec.More() {
		return mismatch("trailing data after JSON object")
	}
	return nil
}

// stripFence removes a surrounding markdown code fence some providers add
// even when asked for raw JSON.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(text), "```")
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
