package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/database"
	"github.com/lysyi3m/mention-comb/app/discovery"
	"github.com/lysyi3m/mention-comb/app/feed"
	"github.com/lysyi3m/mention-comb/app/monitor"
)

const maxResponseBytes = 10 << 20

// Deps are the collaborators a poll needs. Discovery and FeedCache may be nil.
type Deps struct {
	MonitorRepo      database.MonitorRepository
	ResultRepo       database.ResultRepository
	SeenRepo         database.SeenRepository
	UsageRepo        database.UsageRepository
	HTTPClient       *http.Client
	Parser           *feed.Parser
	Filterer         *feed.Filterer
	ContentExtractor *feed.ContentExtractor
	Discovery        DiscoveryMatcher
	FeedCache        FeedInvalidator
	UserAgent        string
}

// PollStats counts what one poll did with the fetched items.
type PollStats struct {
	Fetched          int
	Seen             int
	PriorityMatches  int
	QuickRejected    int
	DiscoveryMatches int
	BelowRelevance   int
	Stored           int
}

type PollMonitorTask struct {
	Task
	Config *monitor.Config
	deps   Deps
}

func NewPollMonitorTask(config *monitor.Config, deps Deps) *PollMonitorTask {
	return &PollMonitorTask{
		Task:   NewTask(TaskTypePollMonitor, config.Name),
		Config: config,
		deps:   deps,
	}
}

func (t *PollMonitorTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !t.Config.Settings.Enabled {
		slog.Debug("Monitor disabled, skipping", "monitor", t.MonitorName)
		return nil
	}

	startedAt := time.Now().UTC()
	stats, err := t.poll(ctx)

	lastError := ""
	if err != nil {
		lastError = err.Error()
	}
	nextPoll := startedAt.Add(t.Config.RefreshInterval())
	if statusErr := t.deps.MonitorRepo.UpdatePollStatus(t.MonitorName, startedAt, nextPoll, lastError); statusErr != nil {
		slog.Warn("Failed to update poll status", "monitor", t.MonitorName, "error", statusErr)
	}

	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"monitor", t.MonitorName,
		"duration", t.GetDuration(),
		"fetched", stats.Fetched,
		"seen", stats.Seen,
		"priority", stats.PriorityMatches,
		"quick_rejected", stats.QuickRejected,
		"discovery", stats.DiscoveryMatches,
		"below_relevance", stats.BelowRelevance,
		"stored", stats.Stored)

	return nil
}

func (t *PollMonitorTask) poll(ctx context.Context) (PollStats, error) {
	var stats PollStats

	items, err := t.fetchSources(ctx)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(items)

	unseen, err := t.filterUnseen(items)
	if err != nil {
		return stats, err
	}
	stats.Seen = len(items) - len(unseen)
	if len(unseen) == 0 {
		return stats, nil
	}

	if t.Config.Settings.ExtractContent {
		t.extractContent(ctx, unseen)
	}

	matched, rest := t.deps.Filterer.Run(unseen, t.Config.MatchConfig())
	stats.PriorityMatches = len(matched)

	var priorityHashes []string
	for _, m := range matched {
		stored, err := t.saveResult(m.Item, database.Result{
			Matcher:      database.MatcherPriority,
			MatchType:    string(m.Result.MatchType),
			MatchedTerms: m.Result.MatchedTerms,
			Explanation:  m.Result.Explanation,
		})
		if err != nil {
			return stats, err
		}
		if stored {
			stats.Stored++
		}
		priorityHashes = append(priorityHashes, m.Item.Hash())
	}
	if err := t.deps.SeenRepo.MarkSeen(t.MonitorName, priorityHashes); err != nil {
		return stats, fmt.Errorf("failed to mark items seen: %w", err)
	}

	// Items left for discovery are marked seen only after the LLM answered,
	// so a provider failure leaves them for the retry.
	if len(rest) > 0 && t.Config.HasDiscovery() && t.deps.Discovery != nil {
		if err := t.discover(ctx, rest, &stats); err != nil {
			t.invalidateFeed(ctx, stats)
			return stats, err
		}
	} else if err := t.deps.SeenRepo.MarkSeen(t.MonitorName, hashes(rest)); err != nil {
		return stats, fmt.Errorf("failed to mark items seen: %w", err)
	}

	t.invalidateFeed(ctx, stats)
	return stats, nil
}

func (t *PollMonitorTask) discover(ctx context.Context, items []content.Item, stats *PollStats) error {
	prompt := t.Config.DiscoveryPrompt

	candidates := items
	if t.Config.Settings.QuickFilter {
		quick, err := t.deps.Discovery.MatchQuickBatch(ctx, items, prompt)
		if err != nil {
			return fmt.Errorf("quick discovery failed: %w", err)
		}

		candidates = nil
		var rejected []string
		for i, outcome := range quick {
			t.recordUsage(discovery.TierQuick, outcome.Meta)
			if outcome.IsMatch {
				candidates = append(candidates, items[i])
			} else {
				rejected = append(rejected, items[i].Hash())
			}
		}
		stats.QuickRejected = len(rejected)

		if err := t.deps.SeenRepo.MarkSeen(t.MonitorName, rejected); err != nil {
			return fmt.Errorf("failed to mark items seen: %w", err)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	outcomes, err := t.deps.Discovery.MatchBatch(ctx, candidates, prompt, t.Config.CompanyName)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	for i, outcome := range outcomes {
		t.recordUsage(discovery.TierFull, outcome.Meta)

		result := outcome.Result
		if !result.IsMatch {
			continue
		}
		if result.RelevanceScore < t.Config.Settings.MinRelevance {
			stats.BelowRelevance++
			continue
		}

		stats.DiscoveryMatches++
		stored, err := t.saveResult(candidates[i], database.Result{
			Matcher:           database.MatcherDiscovery,
			MatchType:         string(result.MatchType),
			MatchedTerms:      result.Signals,
			Explanation:       result.Reasoning,
			RelevanceScore:    result.RelevanceScore,
			Signals:           result.Signals,
			SuggestedKeywords: result.SuggestedKeywords,
		})
		if err != nil {
			return err
		}
		if stored {
			stats.Stored++
		}
	}

	if err := t.deps.SeenRepo.MarkSeen(t.MonitorName, hashes(candidates)); err != nil {
		return fmt.Errorf("failed to mark items seen: %w", err)
	}
	return nil
}

// fetchSources fails only when every source failed.
func (t *PollMonitorTask) fetchSources(ctx context.Context) ([]content.Item, error) {
	var items []content.Item
	var errs []error
	seen := make(map[string]bool)

	for _, source := range t.Config.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := t.fetch(ctx, source.URL, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
		if err != nil {
			slog.Warn("Failed to fetch source", "monitor", t.MonitorName, "url", source.URL, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", source.URL, err))
			continue
		}

		parsed, err := t.deps.Parser.Run(data, feed.Source{Platform: source.Platform, Subreddit: source.Subreddit}, time.Now())
		if err != nil {
			slog.Warn("Failed to parse source", "monitor", t.MonitorName, "url", source.URL, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", source.URL, err))
			continue
		}

		for _, item := range parsed {
			if seen[item.Hash()] {
				continue
			}
			seen[item.Hash()] = true
			items = append(items, item)
		}
	}

	if len(errs) > 0 && len(errs) == len(t.Config.Sources) {
		return nil, fmt.Errorf("all sources failed: %w", errors.Join(errs...))
	}

	if maxItems := t.Config.Settings.MaxItems; maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

func (t *PollMonitorTask) filterUnseen(items []content.Item) ([]content.Item, error) {
	unseenHashes, err := t.deps.SeenRepo.FilterUnseen(t.MonitorName, hashes(items))
	if err != nil {
		return nil, fmt.Errorf("failed to check seen items: %w", err)
	}

	keep := make(map[string]bool, len(unseenHashes))
	for _, h := range unseenHashes {
		keep[h] = true
	}

	unseen := make([]content.Item, 0, len(unseenHashes))
	for _, item := range items {
		if keep[item.Hash()] {
			unseen = append(unseen, item)
		}
	}
	return unseen, nil
}

// extractContent replaces bodies with the linked article text where the feed
// carried little or none. Failures keep the feed body.
func (t *PollMonitorTask) extractContent(ctx context.Context, items []content.Item) {
	if t.deps.ContentExtractor == nil {
		return
	}

	for i := range items {
		item := &items[i]
		if item.Link == "" || len(item.Body) >= 280 {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		data, err := t.fetch(ctx, item.Link, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		if err != nil {
			slog.Debug("Failed to fetch article", "monitor", t.MonitorName, "url", item.Link, "error", err)
			continue
		}

		text, err := t.deps.ContentExtractor.Run(data, item.Link)
		if err != nil {
			slog.Debug("Failed to extract article", "monitor", t.MonitorName, "url", item.Link, "error", err)
			continue
		}
		item.Body = text
	}
}

func (t *PollMonitorTask) fetch(ctx context.Context, url, accept string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.Config.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.deps.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := t.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func (t *PollMonitorTask) saveResult(item content.Item, res database.Result) (bool, error) {
	res.MonitorName = t.MonitorName
	res.ContentHash = item.Hash()
	res.GUID = item.GUID
	res.Title = item.Title
	res.Body = truncate(item.Body, 2000)
	res.Author = item.Author
	res.Platform = item.Platform
	res.Subreddit = item.Subreddit
	res.Link = item.Link
	res.PublishedAt = item.PublishedAt

	stored, err := t.deps.ResultRepo.SaveResult(res)
	if err != nil {
		return false, fmt.Errorf("failed to store result: %w", err)
	}
	return stored, nil
}

func (t *PollMonitorTask) recordUsage(tier string, meta discovery.Meta) {
	if t.deps.UsageRepo == nil {
		return
	}

	err := t.deps.UsageRepo.RecordUsage(database.Usage{
		MonitorName:      t.MonitorName,
		Tier:             tier,
		Model:            meta.Model,
		PromptTokens:     meta.PromptTokens,
		CompletionTokens: meta.CompletionTokens,
		LatencyMs:        meta.LatencyMs,
		Cost:             meta.Cost,
		Cached:           meta.Cached,
	})
	if err != nil {
		slog.Warn("Failed to record LLM usage", "monitor", t.MonitorName, "error", err)
	}
}

func (t *PollMonitorTask) invalidateFeed(ctx context.Context, stats PollStats) {
	if stats.Stored == 0 || t.deps.FeedCache == nil {
		return
	}
	if err := t.deps.FeedCache.InvalidateFeed(ctx, t.MonitorName); err != nil {
		slog.Warn("Failed to invalidate cached feed", "monitor", t.MonitorName, "error", err)
	}
}

func hashes(items []content.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Hash()
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := strings.LastIndex(s[:limit], " ")
	if cut <= 0 {
		cut = limit
	}
	return strings.ToValidUTF8(s[:cut], "") + "…"
}
