package query

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPhrase
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(q string) ([]token, error) {
	var tokens []token

	for i := 0; i < len(q); {
		r, size := utf8.DecodeRuneInString(q[i:])

		switch {
		case unicode.IsSpace(r):
			i += size
		case unicode.IsControl(r):
			return nil, fmt.Errorf("%w at position %d", ErrInvalidCharacter, i)
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i += size
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i += size
		case r == '"':
			end := strings.IndexRune(q[i+size:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w at position %d", ErrUnbalancedQuote, i)
			}
			text := strings.TrimSpace(q[i+size : i+size+end])
			if text == "" {
				return nil, fmt.Errorf("%w at position %d", ErrEmptyPhrase, i)
			}
			if utf8.RuneCountInString(text) > MaxTermLength {
				return nil, fmt.Errorf("%w: %q", ErrTermTooLong, truncate(text))
			}
			tokens = append(tokens, token{kind: tokPhrase, text: text, pos: i})
			i += size + end + 1
		case r == '-':
			i += size
			// A lone hyphen is punctuation, a leading one negates what follows.
			if i < len(q) {
				next, _ := utf8.DecodeRuneInString(q[i:])
				if !unicode.IsSpace(next) && next != ')' {
					tokens = append(tokens, token{kind: tokNot, text: "-", pos: i - size})
				}
			}
		default:
			start := i
			for i < len(q) {
				r, size = utf8.DecodeRuneInString(q[i:])
				if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
					break
				}
				if unicode.IsControl(r) {
					return nil, fmt.Errorf("%w at position %d", ErrInvalidCharacter, i)
				}
				i += size
			}
			word := q[start:i]
			if utf8.RuneCountInString(word) > MaxTermLength {
				return nil, fmt.Errorf("%w: %q", ErrTermTooLong, truncate(word))
			}
			tokens = append(tokens, classify(word, start))
		}
	}

	return tokens, nil
}

// classify recognizes operators. OR is matched in any case, AND and NOT only
// in upper case so that ordinary words stay searchable.
func classify(word string, pos int) token {
	switch {
	case strings.EqualFold(word, "or"):
		return token{kind: tokOr, text: word, pos: pos}
	case word == "AND":
		return token{kind: tokAnd, text: word, pos: pos}
	case word == "NOT":
		return token{kind: tokNot, text: word, pos: pos}
	default:
		return token{kind: tokWord, text: word, pos: pos}
	}
}

func truncate(s string) string {
	const max = 32
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
