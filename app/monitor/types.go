package monitor

import (
	"time"

	"github.com/lysyi3m/mention-comb/app/match"
)

type Config struct {
	Name            string   // Derived from filename (without .yml extension)
	CompanyName     string   `yaml:"company_name"`
	Keywords        []string `yaml:"keywords"`
	SearchQuery     string   `yaml:"search_query"`
	DiscoveryPrompt string   `yaml:"discovery_prompt"`
	Sources         []Source `yaml:"sources"`
	Settings        Settings `yaml:"settings"`
}

type Source struct {
	URL       string `yaml:"url" json:"url"`
	Platform  string `yaml:"platform" json:"platform,omitempty"`
	Subreddit string `yaml:"subreddit" json:"subreddit,omitempty"`
}

type Settings struct {
	Enabled         bool    `yaml:"enabled"`
	RefreshInterval int     `yaml:"refresh_interval"` // seconds
	Timeout         int     `yaml:"timeout"`          // seconds
	MaxItems        int     `yaml:"max_items"`
	ExtractContent  bool    `yaml:"extract_content"`
	QuickFilter     bool    `yaml:"quick_filter"`
	MinRelevance    float64 `yaml:"min_relevance"`
}

func (c *Config) MatchConfig() match.Config {
	return match.Config{
		CompanyName: c.CompanyName,
		Keywords:    c.Keywords,
		SearchQuery: c.SearchQuery,
	}
}

// HasDiscovery reports whether unmatched items go through the LLM matcher.
func (c *Config) HasDiscovery() bool {
	return c.DiscoveryPrompt != ""
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Settings.RefreshInterval) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Settings.Timeout) * time.Second
}
