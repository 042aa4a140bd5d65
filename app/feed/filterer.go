package feed

import (
	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/match"
)

// Matched pairs an item with the priority matcher verdict that selected it.
type Matched struct {
	Item   content.Item
	Result match.Result
}

type Filterer struct {
	matcher *match.Matcher
}

func NewFilterer(matcher *match.Matcher) *Filterer {
	return &Filterer{matcher: matcher}
}

// Run splits items into those the priority matcher accepts and the rest, both
// in input order. A config without criteria matches nothing.
func (f *Filterer) Run(items []content.Item, config match.Config) ([]Matched, []content.Item) {
	if config.IsEmpty() {
		return nil, items
	}

	var matched []Matched
	var rest []content.Item
	for _, item := range items {
		result := f.matcher.Match(item, config)
		if result.Matches {
			matched = append(matched, Matched{Item: item, Result: result})
		} else {
			rest = append(rest, item)
		}
	}

	return matched, rest
}
