package query

import (
	"strings"

	"github.com/lysyi3m/mention-comb/app/content"
)

// Evaluate matches expr against the item's lower-cased title and body. It has
// no side effects: the same expression and item always give the same result.
func Evaluate(expr Expression, item content.Item) Evaluation {
	return EvaluateText(expr, item.Text())
}

// EvaluateText is Evaluate over an already normalized haystack, for callers
// testing many expressions against one item.
func EvaluateText(expr Expression, text string) Evaluation {
	if expr == nil {
		return Evaluation{MatchedTerms: []string{}}
	}

	matches, terms := expr.eval(content.CollapseSpace(text))
	if !matches || terms == nil {
		terms = []string{}
	}
	return Evaluation{Matches: matches, MatchedTerms: terms}
}

func (t Term) eval(text string) (bool, []string) {
	if strings.Contains(text, t.needle) {
		return true, []string{t.text}
	}
	return false, nil
}

func (p Phrase) eval(text string) (bool, []string) {
	if strings.Contains(text, p.needle) {
		return true, []string{p.text}
	}
	return false, nil
}

// An excluded term was deliberately absent, so Not never reports terms.
func (n Not) eval(text string) (bool, []string) {
	matched, _ := n.child.eval(text)
	return !matched, nil
}

func (a And) eval(text string) (bool, []string) {
	var terms []string
	for _, child := range a.children {
		matched, childTerms := child.eval(text)
		if !matched {
			return false, nil
		}
		terms = appendUnique(terms, childTerms)
	}
	return len(a.children) > 0, terms
}

// Only matching branches contribute terms.
func (o Or) eval(text string) (bool, []string) {
	var terms []string
	matchedAny := false
	for _, child := range o.children {
		matched, childTerms := child.eval(text)
		if matched {
			matchedAny = true
			terms = appendUnique(terms, childTerms)
		}
	}
	if !matchedAny {
		return false, nil
	}
	return true, terms
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		seen := false
		for _, d := range dst {
			if d == s {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, s)
		}
	}
	return dst
}
