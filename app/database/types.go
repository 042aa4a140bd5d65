package database

import (
	"time"
)

type Monitor struct {
	ID              int64
	Name            string // Configuration identifier derived from filename
	CompanyName     string
	DiscoveryPrompt string
	Enabled         bool
	LastPolledAt    *time.Time
	NextPollAt      *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Matcher names which stage produced a result.
const (
	MatcherPriority  = "priority"
	MatcherDiscovery = "discovery"
)

type Result struct {
	ID          int64
	MonitorName string
	ContentHash string
	GUID        string
	Title       string
	Body        string
	Author      string
	Platform    string
	Subreddit   string
	Link        string
	PublishedAt time.Time

	Matcher           string
	MatchType         string
	MatchedTerms      []string
	Explanation       string
	RelevanceScore    float64 // discovery only
	Signals           []string
	SuggestedKeywords []string

	CreatedAt time.Time
}

type Usage struct {
	MonitorName      string
	Tier             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        int64
	Cost             float64
	Cached           bool
	CreatedAt        time.Time
}

type UsageSummary struct {
	Calls            int     `json:"calls"`
	CachedCalls      int     `json:"cached_calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
}
