package match

import "strings"

type Type string

const (
	TypeCompany        Type = "company"
	TypeCompanyKeyword Type = "company_keyword"
	TypeKeyword        Type = "keyword"
	TypeBooleanSearch  Type = "boolean_search"
)

// Config is the matching part of a monitor, passed by value per evaluation.
type Config struct {
	CompanyName string   `json:"company_name,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	SearchQuery string   `json:"search_query,omitempty"`
}

type Result struct {
	Matches      bool     `json:"matches"`
	MatchedTerms []string `json:"matched_terms"`
	MatchType    Type     `json:"match_type,omitempty"`
	Explanation  string   `json:"explanation"`
}

// HasSearchQuery reports whether the boolean query mode applies.
func (c Config) HasSearchQuery() bool {
	return strings.TrimSpace(c.SearchQuery) != ""
}

func (c Config) company() string {
	return strings.TrimSpace(c.CompanyName)
}

// IsEmpty reports whether nothing is configured to match on.
func (c Config) IsEmpty() bool {
	if c.HasSearchQuery() || c.company() != "" {
		return false
	}
	for _, kw := range c.Keywords {
		if strings.TrimSpace(kw) != "" {
			return false
		}
	}
	return true
}
