package discovery

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptTemplate is a system instruction and a user message template for one
// tier. User templates receive a promptData value.
type PromptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts maps a tier name to its templates. Prompt text is configuration,
// versioned and swapped without touching the matching code.
type Prompts map[string]PromptTemplate

type promptData struct {
	DiscoveryPrompt string
	CompanyName     string
	Title           string
	Body            string
	Author          string
	Platform        string
	Subreddit       string
}

const defaultFullSystem = `You decide whether one piece of online content matches a user's monitoring intent.

Judge only what the content itself says. A match can be:
- direct: the content explicitly names the subject of the intent;
- semantic: the content expresses the same need or situation in different words;
- contextual: the content is clearly about the situation the user cares about.

Be conservative. When the evidence is weak or ambiguous, answer isMatch false.
Missing a relevant post is cheaper for the user than receiving an irrelevant alert.

Respond with one JSON object and nothing else:
{"isMatch": boolean, "relevanceScore": number between 0 and 1, "matchType": "direct" | "semantic" | "contextual" | "none", "reasoning": string, "signals": [string], "suggestedKeywords": [string]}
Use matchType "none" when isMatch is false.`

const defaultFullUser = `Monitoring intent: {{.DiscoveryPrompt}}
{{- if .CompanyName}}
Company of interest: {{.CompanyName}}
{{- end}}

Content{{if .Platform}} from {{.Platform}}{{end}}{{if .Subreddit}} (r/{{.Subreddit}}){{end}}:
Title: {{.Title}}
{{- if .Author}}
Author: {{.Author}}
{{- end}}
Body: {{.Body}}`

const defaultQuickSystem = `Decide quickly whether the content could match the monitoring intent.
Answer false unless the content plausibly fits.
Respond with one JSON object and nothing else: {"isMatch": boolean, "confidence": number between 0 and 1}`

const defaultQuickUser = `Intent: {{.DiscoveryPrompt}}
Title: {{.Title}}
Body: {{.Body}}`

func DefaultPrompts() Prompts {
	return Prompts{
		TierFull:  {System: defaultFullSystem, User: defaultFullUser},
		TierQuick: {System: defaultQuickSystem, User: defaultQuickUser},
	}
}

// Overrides is the optional YAML file replacing prompt templates and prices.
type Overrides struct {
	Prompts Prompts `yaml:"prompts"`
	Pricing Pricing `yaml:"pricing"`
}

// LoadOverrides reads path and merges its prompts and prices over cfg.
func LoadOverrides(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	for tier, tmpl := range overrides.Prompts {
		current := cfg.Prompts[tier]
		if tmpl.System != "" {
			current.System = tmpl.System
		}
		if tmpl.User != "" {
			current.User = tmpl.User
		}
		cfg.Prompts[tier] = current
	}

	if cfg.Pricing == nil {
		cfg.Pricing = DefaultPricing()
	}
	for model, price := range overrides.Pricing {
		cfg.Pricing[model] = price
	}

	return nil
}

type compiledPrompt struct {
	system string
	user   *template.Template
}

func compilePrompts(prompts Prompts) (map[string]compiledPrompt, error) {
	compiled := make(map[string]compiledPrompt, len(prompts))
	for _, tier := range []string{TierFull, TierQuick} {
		tmpl, ok := prompts[tier]
		if !ok || tmpl.User == "" {
			return nil, fmt.Errorf("missing %s prompt template", tier)
		}
		user, err := template.New(tier).Option("missingkey=error").Parse(tmpl.User)
		if err != nil {
			return nil, fmt.Errorf("invalid %s prompt template: %w", tier, err)
		}
		compiled[tier] = compiledPrompt{system: tmpl.System, user: user}
	}
	return compiled, nil
}

func (p compiledPrompt) render(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := p.user.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
