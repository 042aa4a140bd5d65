package query

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Compile parses q into an Expression, reporting why a malformed query was
// rejected.
func Compile(q string) (Expression, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return nil, fmt.Errorf("%w (%d characters)", ErrQueryTooLong, MaxQueryLength)
	}

	tokens, err := tokenize(q)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseAnd(0)
	if err != nil {
		return nil, err
	}

	return expr, nil
}

// Parse compiles q and fails closed: a malformed query yields Never() so that
// one bad monitor cannot break a shared poll batch.
func Parse(q string) Expression {
	expr, err := Compile(q)
	if err != nil {
		return Never()
	}
	return expr
}

type parser struct {
	tokens []token
	pos    int
	nodes  int
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// operandFollows reports whether the next token can start an operand.
func (p *parser) operandFollows() bool {
	if p.done() {
		return false
	}
	switch p.peek().kind {
	case tokWord, tokPhrase, tokNot, tokLParen:
		return true
	default:
		return false
	}
}

func (p *parser) node() error {
	p.nodes++
	if p.nodes > MaxNodes {
		return fmt.Errorf("%w (max %d)", ErrTooComplex, MaxNodes)
	}
	return nil
}

// parseAnd handles implicit and explicit conjunction, the loosest binding.
func (p *parser) parseAnd(depth int) (Expression, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w (max %d)", ErrTooDeep, MaxDepth)
	}

	var children []Expression
	for !p.done() && p.peek().kind != tokRParen {
		if p.peek().kind == tokAnd {
			op := p.next()
			if len(children) == 0 || !p.operandFollows() {
				return nil, fmt.Errorf("%w: AND at position %d", ErrDanglingOperator, op.pos)
			}
		}

		child, err := p.parseOr(depth)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	if depth == 0 && !p.done() {
		return nil, fmt.Errorf("%w at position %d", ErrUnbalancedParen, p.peek().pos)
	}

	switch len(children) {
	case 0:
		return nil, ErrEmptyGroup
	case 1:
		return children[0], nil
	}
	if err := p.node(); err != nil {
		return nil, err
	}
	return And{children: children}, nil
}

// parseOr binds OR to its immediate neighbours only.
func (p *parser) parseOr(depth int) (Expression, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}

	children := []Expression{left}
	for !p.done() && p.peek().kind == tokOr {
		op := p.next()
		if !p.operandFollows() {
			return nil, fmt.Errorf("%w: OR at position %d", ErrDanglingOperator, op.pos)
		}
		right, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}

	if len(children) == 1 {
		return left, nil
	}
	if err := p.node(); err != nil {
		return nil, err
	}
	return Or{children: children}, nil
}

func (p *parser) parseUnary(depth int) (Expression, error) {
	if !p.done() && p.peek().kind == tokNot {
		op := p.next()
		if !p.operandFollows() {
			return nil, fmt.Errorf("%w: %s at position %d", ErrDanglingOperator, op.text, op.pos)
		}
		if depth+1 > MaxDepth {
			return nil, fmt.Errorf("%w (max %d)", ErrTooDeep, MaxDepth)
		}
		child, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		if err := p.node(); err != nil {
			return nil, err
		}
		return Not{child: child}, nil
	}
	return p.parsePrimary(depth)
}

func (p *parser) parsePrimary(depth int) (Expression, error) {
	if p.done() {
		return nil, ErrDanglingOperator
	}

	tok := p.next()
	switch tok.kind {
	case tokWord:
		if err := p.node(); err != nil {
			return nil, err
		}
		return NewTerm(tok.text), nil
	case tokPhrase:
		if err := p.node(); err != nil {
			return nil, err
		}
		return NewPhrase(tok.text), nil
	case tokLParen:
		expr, err := p.parseAnd(depth + 1)
		if err != nil {
			return nil, err
		}
		if p.done() || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("%w at position %d", ErrUnbalancedParen, tok.pos)
		}
		p.next()
		return expr, nil
	case tokRParen:
		return nil, fmt.Errorf("%w at position %d", ErrUnbalancedParen, tok.pos)
	default:
		return nil, fmt.Errorf("%w: %s at position %d", ErrDanglingOperator, tok.text, tok.pos)
	}
}
