package match

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/query"
)

const noMatchExplanation = "No matches found"

// DefaultCacheSize bounds the number of distinct compiled search queries kept.
const DefaultCacheSize = 1024

var matchResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mention_comb",
	Subsystem: "match",
	Name:      "results_total",
	Help:      "Priority matcher verdicts by match type",
}, []string{"match_type"})

// Matcher is the single entry point deciding whether a content item is
// relevant to a monitor. Compiled search queries are cached per distinct
// query string and shared read-only between goroutines.
type Matcher struct {
	mu        sync.RWMutex
	exprs     map[string]query.Expression
	cacheSize int
}

func NewMatcher() *Matcher {
	return NewMatcherWithCacheSize(DefaultCacheSize)
}

func NewMatcherWithCacheSize(size int) *Matcher {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Matcher{
		exprs:     make(map[string]query.Expression),
		cacheSize: size,
	}
}

// Match evaluates item against cfg. A non-blank search query is evaluated
// exclusively, even when it fails to parse; otherwise company evidence wins
// over keyword-only evidence.
func (m *Matcher) Match(item content.Item, cfg Config) Result {
	result := m.match(item, cfg)

	label := string(result.MatchType)
	if !result.Matches {
		label = "none"
	}
	matchResults.WithLabelValues(label).Inc()

	return result
}

func (m *Matcher) match(item content.Item, cfg Config) Result {
	text := item.Text()

	if cfg.HasSearchQuery() {
		return m.matchSearchQuery(text, cfg.SearchQuery)
	}

	if company := cfg.company(); company != "" && strings.Contains(text, content.Normalize(company)) {
		if keyword, ok := firstKeyword(text, cfg.Keywords); ok {
			return Result{
				Matches:      true,
				MatchedTerms: []string{company, keyword},
				MatchType:    TypeCompanyKeyword,
				Explanation:  fmt.Sprintf("Company %q mentioned together with keyword %q", company, keyword),
			}
		}
		return Result{
			Matches:      true,
			MatchedTerms: []string{company},
			MatchType:    TypeCompany,
			Explanation:  fmt.Sprintf("Company %q mentioned", company),
		}
	}

	if keywords := allKeywords(text, cfg.Keywords); len(keywords) > 0 {
		return Result{
			Matches:      true,
			MatchedTerms: keywords,
			MatchType:    TypeKeyword,
			Explanation:  fmt.Sprintf("Matched keywords: %s", strings.Join(keywords, ", ")),
		}
	}

	return Result{
		Matches:      false,
		MatchedTerms: []string{},
		Explanation:  noMatchExplanation,
	}
}

func (m *Matcher) matchSearchQuery(text, q string) Result {
	q = strings.TrimSpace(q)
	eval := query.EvaluateText(m.Expression(q), text)

	result := Result{
		Matches:      eval.Matches,
		MatchedTerms: eval.MatchedTerms,
		MatchType:    TypeBooleanSearch,
	}

	switch {
	case !eval.Matches:
		result.Explanation = fmt.Sprintf("Did not match search query %q", q)
	case len(eval.MatchedTerms) > 0:
		result.Explanation = fmt.Sprintf("Matched search query %q on: %s", q, strings.Join(eval.MatchedTerms, ", "))
	default:
		result.Explanation = fmt.Sprintf("Matched search query %q", q)
	}

	return result
}

// Expression returns the compiled form of q, compiling it at most once while
// it stays cached. Malformed queries compile to query.Never().
func (m *Matcher) Expression(q string) query.Expression {
	m.mu.RLock()
	expr, ok := m.exprs[q]
	m.mu.RUnlock()
	if ok {
		return expr
	}

	expr, err := query.Compile(q)
	if err != nil {
		slog.Debug("Search query rejected, matching nothing", "query", q, "error", err)
		expr = query.Never()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.exprs[q]; ok {
		return cached
	}
	if len(m.exprs) >= m.cacheSize {
		m.exprs = make(map[string]query.Expression, m.cacheSize)
	}
	m.exprs[q] = expr

	return expr
}

// firstKeyword returns the first keyword, in user order, present in text.
func firstKeyword(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if containsKeyword(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// allKeywords returns every keyword present in text, in user order.
func allKeywords(text string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if containsKeyword(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func containsKeyword(text, keyword string) bool {
	needle := content.Normalize(strings.TrimSpace(keyword))
	if needle == "" {
		return false
	}
	return strings.Contains(text, needle)
}

var defaultMatcher = NewMatcher()

// Match evaluates item against cfg using a shared package-level Matcher.
func Match(item content.Item, cfg Config) Result {
	return defaultMatcher.Match(item, cfg)
}
