package feed

import (
	"testing"

	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/match"
)

func TestFilterer_SplitsByPriorityMatch(t *testing.T) {
	filterer := NewFilterer(match.NewMatcher())

	items := []content.Item{
		{Title: "Acme raised prices", GUID: "1"},
		{Title: "Lunch ideas", GUID: "2"},
		{Title: "Anyone tried Acme?", GUID: "3"},
		{Title: "Pricing pages that convert", GUID: "4"},
	}

	matched, rest := filterer.Run(items, match.Config{CompanyName: "Acme", Keywords: []string{"prices"}})

	if len(matched) != 2 || matched[0].Item.GUID != "1" || matched[1].Item.GUID != "3" {
		t.Fatalf("Expected items 1 and 3 to match, got %+v", matched)
	}
	if matched[0].Result.MatchType != match.TypeCompanyKeyword {
		t.Errorf("Expected %s, got %s", match.TypeCompanyKeyword, matched[0].Result.MatchType)
	}
	if matched[1].Result.MatchType != match.TypeCompany {
		t.Errorf("Expected %s, got %s", match.TypeCompany, matched[1].Result.MatchType)
	}
	if len(rest) != 2 || rest[0].GUID != "2" || rest[1].GUID != "4" {
		t.Errorf("Expected items 2 and 4 to remain, got %+v", rest)
	}
}

func TestFilterer_EmptyConfigPassesEverythingOn(t *testing.T) {
	filterer := NewFilterer(match.NewMatcher())
	items := []content.Item{{Title: "a"}, {Title: "b"}}

	matched, rest := filterer.Run(items, match.Config{})
	if len(matched) != 0 {
		t.Errorf("Expected no matches, got %d", len(matched))
	}
	if len(rest) != 2 {
		t.Errorf("Expected all items to remain, got %d", len(rest))
	}
}
