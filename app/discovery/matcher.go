package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/mention-comb/app/content"
)

const (
	DefaultFullModel      = "gemini-2.5-flash"
	DefaultQuickModel     = "gemini-2.5-flash-lite"
	DefaultFullBodyLimit  = 1500
	DefaultQuickBodyLimit = 500
	DefaultBatchSize      = 5
	DefaultCacheTTL       = 24 * time.Hour
)

type Config struct {
	FullModel            string
	QuickModel           string
	FullBodyLimit        int
	QuickBodyLimit       int
	FullMaxOutputTokens  int
	QuickMaxOutputTokens int
	BatchSize            int
	Prompts              Prompts
	Pricing              Pricing
	Cache                ResultCache
	CacheTTL             time.Duration
}

func DefaultConfig() Config {
	return Config{
		FullModel:            DefaultFullModel,
		QuickModel:           DefaultQuickModel,
		FullBodyLimit:        DefaultFullBodyLimit,
		QuickBodyLimit:       DefaultQuickBodyLimit,
		FullMaxOutputTokens:  512,
		QuickMaxOutputTokens: 64,
		BatchSize:            DefaultBatchSize,
		Prompts:              DefaultPrompts(),
		Pricing:              DefaultPricing(),
		CacheTTL:             DefaultCacheTTL,
	}
}

// Matcher decides relevance of content to a free-text discovery intent with
// an LLM. Provider failures are returned to the caller unchanged in meaning:
// they are never retried here and never turned into a negative verdict.
type Matcher struct {
	completer Completer
	cfg       Config
	prompts   map[string]compiledPrompt
}

func NewMatcher(completer Completer, cfg Config) (*Matcher, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is nil")
	}

	defaults := DefaultConfig()
	cfg.FullModel = cmp.Or(cfg.FullModel, defaults.FullModel)
	cfg.QuickModel = cmp.Or(cfg.QuickModel, defaults.QuickModel)
	cfg.FullBodyLimit = cmp.Or(cfg.FullBodyLimit, defaults.FullBodyLimit)
	cfg.QuickBodyLimit = cmp.Or(cfg.QuickBodyLimit, defaults.QuickBodyLimit)
	cfg.FullMaxOutputTokens = cmp.Or(cfg.FullMaxOutputTokens, defaults.FullMaxOutputTokens)
	cfg.QuickMaxOutputTokens = cmp.Or(cfg.QuickMaxOutputTokens, defaults.QuickMaxOutputTokens)
	cfg.BatchSize = cmp.Or(cfg.BatchSize, defaults.BatchSize)
	cfg.CacheTTL = cmp.Or(cfg.CacheTTL, defaults.CacheTTL)
	if cfg.Prompts == nil {
		cfg.Prompts = defaults.Prompts
	}
	if cfg.Pricing == nil {
		cfg.Pricing = defaults.Pricing
	}

	nonNegative := map[string]int{
		"full body limit":  cfg.FullBodyLimit,
		"quick body limit": cfg.QuickBodyLimit,
		"batch size":       cfg.BatchSize,
	}
	for name, value := range nonNegative {
		if value < 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}

	prompts, err := compilePrompts(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	return &Matcher{completer: completer, cfg: cfg, prompts: prompts}, nil
}

// MatchFull asks the full-fidelity model for a structured verdict on item.
func (m *Matcher) MatchFull(ctx context.Context, item content.Item, discoveryPrompt, companyName string) (Outcome, error) {
	key := CacheKey(m.cfg.FullModel, discoveryPrompt, companyName, item)
	if cached, ok := m.cached(ctx, key); ok {
		return cached, nil
	}

	data := newPromptData(item, discoveryPrompt, companyName, m.cfg.FullBodyLimit)
	text, meta, err := m.complete(ctx, TierFull, m.cfg.FullModel, fullSchema, m.cfg.FullMaxOutputTokens, data)
	if err != nil {
		return Outcome{}, err
	}

	result, err := ParseResult(text)
	if err != nil {
		requestsTotal.WithLabelValues(TierFull, "schema_mismatch").Inc()
		return Outcome{}, fmt.Errorf("full discovery match: %w", err)
	}
	requestsTotal.WithLabelValues(TierFull, "ok").Inc()

	outcome := Outcome{Result: result, Meta: meta}
	m.store(ctx, key, outcome)

	return outcome, nil
}

// MatchQuick is the cheap pre-filter: a shorter body window and a minimal
// prompt returning only a yes/no and a confidence.
func (m *Matcher) MatchQuick(ctx context.Context, item content.Item, discoveryPrompt string) (QuickOutcome, error) {
	data := newPromptData(item, discoveryPrompt, "", m.cfg.QuickBodyLimit)
	text, meta, err := m.complete(ctx, TierQuick, m.cfg.QuickModel, quickSchema, m.cfg.QuickMaxOutputTokens, data)
	if err != nil {
		return QuickOutcome{}, err
	}

	result, err := ParseQuickResult(text)
	if err != nil {
		requestsTotal.WithLabelValues(TierQuick, "schema_mismatch").Inc()
		return QuickOutcome{}, fmt.Errorf("quick discovery match: %w", err)
	}
	requestsTotal.WithLabelValues(TierQuick, "ok").Inc()

	return QuickOutcome{QuickResult: result, Meta: meta}, nil
}

// MatchBatch runs MatchFull over items in waves of at most BatchSize
// concurrent calls. Each wave completes before the next starts and ctx is
// checked between waves. Outcomes are in input order. The first failure is
// returned once its wave has finished.
func (m *Matcher) MatchBatch(ctx context.Context, items []content.Item, discoveryPrompt, companyName string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(items))
	err := m.runWaves(ctx, len(items), func(ctx context.Context, i int) error {
		outcome, err := m.MatchFull(ctx, items[i], discoveryPrompt, companyName)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		outcomes[i] = outcome
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// MatchQuickBatch is MatchBatch for the quick tier.
func (m *Matcher) MatchQuickBatch(ctx context.Context, items []content.Item, discoveryPrompt string) ([]QuickOutcome, error) {
	outcomes := make([]QuickOutcome, len(items))
	err := m.runWaves(ctx, len(items), func(ctx context.Context, i int) error {
		outcome, err := m.MatchQuick(ctx, items[i], discoveryPrompt)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		outcomes[i] = outcome
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (m *Matcher) runWaves(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for start := 0; start < n; start += m.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("batch stopped before item %d: %w", start, err)
		}

		end := min(start+m.cfg.BatchSize, n)
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				return fn(ctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matcher) complete(ctx context.Context, tier, model string, schema *Schema, maxTokens int, data promptData) (string, Meta, error) {
	prompt := m.prompts[tier]
	user, err := prompt.render(data)
	if err != nil {
		return "", Meta{}, err
	}

	req := Request{
		Model:           model,
		System:          prompt.system,
		Messages:        []Message{{Role: RoleUser, Content: user}},
		Schema:          schema,
		MaxOutputTokens: maxTokens,
	}

	start := time.Now()
	completion, err := m.completer.Complete(ctx, req)
	latency := time.Since(start)
	if err != nil {
		requestsTotal.WithLabelValues(tier, "error").Inc()
		return "", Meta{}, fmt.Errorf("%s discovery completion with %s: %w", tier, model, err)
	}

	meta := Meta{
		Model:            cmp.Or(completion.Model, model),
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		LatencyMs:        latency.Milliseconds(),
	}
	cost, priced := m.cfg.Pricing.Cost(meta.PromptTokens, meta.CompletionTokens, model, meta.Model)
	if !priced {
		slog.Debug("No price configured for model", "model", meta.Model)
	}
	meta.Cost = cost
	observe(tier, meta)

	return completion.Text, meta, nil
}

func (m *Matcher) cached(ctx context.Context, key string) (Outcome, bool) {
	if m.cfg.Cache == nil {
		return Outcome{}, false
	}

	outcome, err := m.cfg.Cache.GetOutcome(ctx, key)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("Discovery cache lookup failed", "error", err)
		}
		return Outcome{}, false
	}
	if outcome == nil {
		return Outcome{}, false
	}

	requestsTotal.WithLabelValues(TierFull, "cached").Inc()
	outcome.Meta.Cached = true
	outcome.Meta.Cost = 0
	outcome.Meta.LatencyMs = 0
	return *outcome, true
}

func (m *Matcher) store(ctx context.Context, key string, outcome Outcome) {
	if m.cfg.Cache == nil {
		return
	}
	if err := m.cfg.Cache.SetOutcome(ctx, key, outcome, m.cfg.CacheTTL); err != nil {
		slog.Warn("Discovery cache store failed", "error", err)
	}
}

func newPromptData(item content.Item, discoveryPrompt, companyName string, bodyLimit int) promptData {
	return promptData{
		DiscoveryPrompt: strings.TrimSpace(discoveryPrompt),
		CompanyName:     strings.TrimSpace(companyName),
		Title:           strings.TrimSpace(item.Title),
		Body:            truncateRunes(strings.TrimSpace(item.Body), bodyLimit),
		Author:          item.Author,
		Platform:        item.Platform,
		Subreddit:       item.Subreddit,
	}
}

// truncateRunes cuts s to at most limit runes without splitting a character.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
