package query

import "errors"

// Bounds on user-supplied queries. They cap the worst-case cost of parsing and
// of evaluating one expression against thousands of items per poll.
const (
	MaxQueryLength = 512
	MaxTermLength  = 128
	MaxDepth       = 8
	MaxNodes       = 64
)

var (
	ErrEmptyQuery       = errors.New("query is empty")
	ErrQueryTooLong     = errors.New("query exceeds maximum length")
	ErrTermTooLong      = errors.New("term exceeds maximum length")
	ErrInvalidCharacter = errors.New("query contains a control character")
	ErrUnbalancedQuote  = errors.New("unbalanced quote")
	ErrUnbalancedParen  = errors.New("unbalanced parenthesis")
	ErrEmptyPhrase      = errors.New("empty phrase")
	ErrEmptyGroup       = errors.New("empty group")
	ErrDanglingOperator = errors.New("operator is missing an operand")
	ErrTooDeep          = errors.New("query nesting too deep")
	ErrTooComplex       = errors.New("query has too many terms")
)
