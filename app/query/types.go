package query

import (
	"strings"

	"github.com/lysyi3m/mention-comb/app/content"
)

// Expression is a compiled search query. Expressions are immutable once built
// and are safe to share across goroutines.
type Expression interface {
	String() string
	eval(text string) (bool, []string)
}

// Evaluation is the outcome of evaluating an Expression against one item.
type Evaluation struct {
	Matches      bool
	MatchedTerms []string
}

type Term struct {
	text   string
	needle string
}

type Phrase struct {
	text   string
	needle string
}

type Not struct {
	child Expression
}

type And struct {
	children []Expression
}

type Or struct {
	children []Expression
}

func NewTerm(text string) Term {
	return Term{text: text, needle: content.Normalize(text)}
}

func NewPhrase(text string) Phrase {
	text = content.CollapseSpace(text)
	return Phrase{text: text, needle: content.Normalize(text)}
}

func NewNot(child Expression) Not {
	return Not{child: child}
}

func NewAnd(children ...Expression) And {
	return And{children: append([]Expression(nil), children...)}
}

func NewOr(children ...Expression) Or {
	return Or{children: append([]Expression(nil), children...)}
}

// Never returns the always-false expression malformed queries compile to.
func Never() Expression {
	return Or{}
}

// IsNever reports whether expr is the always-false expression.
func IsNever(expr Expression) bool {
	or, ok := expr.(Or)
	return ok && len(or.children) == 0
}

func (t Term) Text() string   { return t.text }
func (p Phrase) Text() string { return p.text }
func (n Not) Child() Expression {
	return n.child
}

func (a And) Children() []Expression {
	return append([]Expression(nil), a.children...)
}

func (o Or) Children() []Expression {
	return append([]Expression(nil), o.children...)
}

func (t Term) String() string   { return t.text }
func (p Phrase) String() string { return `"` + p.text + `"` }
func (n Not) String() string    { return "NOT " + n.child.String() }

func (a And) String() string {
	return joinChildren(a.children, " AND ")
}

func (o Or) String() string {
	if len(o.children) == 0 {
		return "FALSE"
	}
	return joinChildren(o.children, " OR ")
}

func joinChildren(children []Expression, sep string) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
