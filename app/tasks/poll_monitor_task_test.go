package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/database"
	"github.com/lysyi3m/mention-comb/app/discovery"
	"github.com/lysyi3m/mention-comb/app/feed"
	"github.com/lysyi3m/mention-comb/app/match"
	"github.com/lysyi3m/mention-comb/app/monitor"
)

// MockDiscovery answers by title: "spreadsheet" is a strong match, "tool" a
// weak one, everything else is rejected by the quick tier.
type MockDiscovery struct {
	mu          sync.Mutex
	quickCalls  [][]string
	fullCalls   [][]string
	fullErr     error
	lastCompany string
}

func titles(items []content.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Title
	}
	return out
}

func (m *MockDiscovery) MatchQuickBatch(_ context.Context, items []content.Item, _ string) ([]discovery.QuickOutcome, error) {
	m.mu.Lock()
	m.quickCalls = append(m.quickCalls, titles(items))
	m.mu.Unlock()

	outcomes := make([]discovery.QuickOutcome, len(items))
	for i, item := range items {
		title := strings.ToLower(item.Title)
		outcomes[i].IsMatch = strings.Contains(title, "spreadsheet") || strings.Contains(title, "tool")
		outcomes[i].Confidence = 0.7
		outcomes[i].Meta = discovery.Meta{Model: "quick-model", PromptTokens: 10, CompletionTokens: 2, Cost: 0.001}
	}
	return outcomes, nil
}

func (m *MockDiscovery) MatchBatch(_ context.Context, items []content.Item, _ string, companyName string) ([]discovery.Outcome, error) {
	m.mu.Lock()
	m.fullCalls = append(m.fullCalls, titles(items))
	m.lastCompany = companyName
	m.mu.Unlock()

	if m.fullErr != nil {
		return nil, m.fullErr
	}

	outcomes := make([]discovery.Outcome, len(items))
	for i, item := range items {
		outcomes[i].Meta = discovery.Meta{Model: "full-model", PromptTokens: 100, CompletionTokens: 20, Cost: 0.01}
		title := strings.ToLower(item.Title)
		switch {
		case strings.Contains(title, "spreadsheet"):
			outcomes[i].Result = discovery.Result{IsMatch: true, RelevanceScore: 0.9, MatchType: discovery.MatchSemantic, Reasoning: "Wants a PM tool.", Signals: []string{"spreadsheets"}, SuggestedKeywords: []string{"tracker"}}
		case strings.Contains(title, "tool"):
			outcomes[i].Result = discovery.Result{IsMatch: true, RelevanceScore: 0.4, MatchType: discovery.MatchContextual, Reasoning: "Vague."}
		default:
			outcomes[i].Result = discovery.Result{MatchType: discovery.MatchNone, Reasoning: "No."}
		}
	}
	return outcomes, nil
}

type MockFeedCache struct {
	invalidated []string
}

func (m *MockFeedCache) InvalidateFeed(_ context.Context, monitorName string) error {
	m.invalidated = append(m.invalidated, monitorName)
	return nil
}

type testEnv struct {
	db        *database.DB
	monitors  *database.MonitorRepo
	results   *database.ResultRepo
	seen      *database.SeenRepo
	usage     *database.UsageRepo
	discovery *MockDiscovery
	feedCache *MockFeedCache
	deps      Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	env := &testEnv{
		db:        db,
		monitors:  database.NewMonitorRepository(db),
		results:   database.NewResultRepository(db),
		seen:      database.NewSeenRepository(db),
		usage:     database.NewUsageRepository(db),
		discovery: &MockDiscovery{},
		feedCache: &MockFeedCache{},
	}
	env.deps = Deps{
		MonitorRepo:      env.monitors,
		ResultRepo:       env.results,
		SeenRepo:         env.seen,
		UsageRepo:        env.usage,
		HTTPClient:       &http.Client{Timeout: 5 * time.Second},
		Parser:           feed.NewParser(),
		Filterer:         feed.NewFilterer(match.NewMatcher()),
		ContentExtractor: feed.NewContentExtractor(),
		Discovery:        env.discovery,
		FeedCache:        env.feedCache,
		UserAgent:        "Mention-Comb/test",
	}
	return env
}

func rssFeed(items ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`)
	for i, item := range items {
		fmt.Fprintf(&b, `<item><guid>g%d</guid><title>%s</title><link>https://example.com/%d</link><description>body %d</description></item>`, i, item, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Mention-Comb/test" {
			t.Errorf("Expected user agent to be set, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(name string, urls ...string) *monitor.Config {
	config := &monitor.Config{
		Name:            name,
		CompanyName:     "Acme",
		Keywords:        []string{"pricing"},
		DiscoveryPrompt: "People looking for project management tools",
		Settings: monitor.Settings{
			Enabled:         true,
			RefreshInterval: 900,
			Timeout:         5,
			MaxItems:        100,
			QuickFilter:     true,
			MinRelevance:    0.6,
		},
	}
	for _, u := range urls {
		config.Sources = append(config.Sources, monitor.Source{URL: u, Platform: "reddit", Subreddit: "startups"})
	}
	return config
}

func TestPollMonitorTask_FullPipeline(t *testing.T) {
	env := newTestEnv(t)
	srv := serveFeed(t, rssFeed(
		"Acme pricing changed again",
		"Spreadsheets are killing our team",
		"Is there a tool for this",
		"Best pizza in town",
	))

	config := testConfig("acme", srv.URL)
	if err := env.monitors.UpsertMonitor(config.Name, config.CompanyName, config.DiscoveryPrompt, true); err != nil {
		t.Fatal(err)
	}

	task := NewPollMonitorTask(config, env.deps)
	task.Start()
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	results, err := env.results.GetResults("acme", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d: %+v", len(results), results)
	}

	byMatcher := map[string]database.Result{}
	for _, r := range results {
		byMatcher[r.Matcher] = r
	}
	priority := byMatcher[database.MatcherPriority]
	if priority.MatchType != string(match.TypeCompanyKeyword) || priority.Platform != "reddit" {
		t.Errorf("Expected company_keyword priority result from reddit, got %+v", priority)
	}
	disc := byMatcher[database.MatcherDiscovery]
	if disc.Title != "Spreadsheets are killing our team" || disc.RelevanceScore != 0.9 {
		t.Errorf("Expected strong discovery match, got %+v", disc)
	}

	if len(env.discovery.quickCalls) != 1 || len(env.discovery.quickCalls[0]) != 3 {
		t.Errorf("Expected one quick batch of the 3 unmatched items, got %v", env.discovery.quickCalls)
	}
	if len(env.discovery.fullCalls) != 1 || len(env.discovery.fullCalls[0]) != 2 {
		t.Errorf("Expected one full batch of the 2 quick survivors, got %v", env.discovery.fullCalls)
	}
	if env.discovery.lastCompany != "Acme" {
		t.Errorf("Expected company to be passed to discovery, got %q", env.discovery.lastCompany)
	}

	summary, err := env.usage.GetUsageSummary("acme", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Calls != 5 {
		t.Errorf("Expected 5 recorded LLM calls, got %d", summary.Calls)
	}

	m, _ := env.monitors.GetMonitor("acme")
	if m.NextPollAt == nil || m.LastPolledAt == nil {
		t.Fatal("Expected poll status to be recorded")
	}
	if got := m.NextPollAt.Sub(*m.LastPolledAt); got != 900*time.Second {
		t.Errorf("Expected next poll after refresh interval, got %v", got)
	}
	if m.LastError != "" {
		t.Errorf("Expected no last error, got %q", m.LastError)
	}

	if len(env.feedCache.invalidated) != 1 {
		t.Errorf("Expected feed cache invalidation, got %v", env.feedCache.invalidated)
	}

	// Everything is seen now: a second poll makes no LLM calls.
	if err := NewPollMonitorTask(config, env.deps).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error on second poll, got %v", err)
	}
	if len(env.discovery.quickCalls) != 1 || len(env.discovery.fullCalls) != 1 {
		t.Errorf("Expected no new discovery calls, got %d quick and %d full", len(env.discovery.quickCalls), len(env.discovery.fullCalls))
	}
	if len(env.feedCache.invalidated) != 1 {
		t.Errorf("Expected no invalidation without new results, got %v", env.feedCache.invalidated)
	}
}

func TestPollMonitorTask_DiscoveryFailureLeavesItemsForRetry(t *testing.T) {
	env := newTestEnv(t)
	env.discovery.fullErr = errors.New("provider unavailable")
	srv := serveFeed(t, rssFeed("Acme pricing", "Spreadsheets everywhere"))

	config := testConfig("acme", srv.URL)
	config.Settings.QuickFilter = false
	env.monitors.UpsertMonitor(config.Name, config.CompanyName, config.DiscoveryPrompt, true)

	err := NewPollMonitorTask(config, env.deps).Execute(context.Background())
	if !errors.Is(err, env.discovery.fullErr) {
		t.Fatalf("Expected provider error, got %v", err)
	}

	if count, _ := env.results.GetResultCount("acme"); count != 1 {
		t.Errorf("Expected priority result to be kept, got %d results", count)
	}

	items, _ := feed.NewParser().Run([]byte(rssFeed("Acme pricing", "Spreadsheets everywhere")), feed.Source{}, time.Now())
	unseen, err := env.seen.FilterUnseen("acme", []string{items[0].Hash(), items[1].Hash()})
	if err != nil {
		t.Fatal(err)
	}
	if len(unseen) != 1 || unseen[0] != items[1].Hash() {
		t.Errorf("Expected only the discovery item to stay unseen, got %v", unseen)
	}

	m, _ := env.monitors.GetMonitor("acme")
	if !strings.Contains(m.LastError, "provider unavailable") {
		t.Errorf("Expected last error to be recorded, got %q", m.LastError)
	}
}

func TestPollMonitorTask_Sources(t *testing.T) {
	env := newTestEnv(t)
	good := serveFeed(t, rssFeed("Acme pricing"))
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	config := testConfig("partial", bad.URL, good.URL)
	config.DiscoveryPrompt = ""
	if err := NewPollMonitorTask(config, env.deps).Execute(context.Background()); err != nil {
		t.Errorf("Expected partial source failure to be tolerated, got %v", err)
	}
	if count, _ := env.results.GetResultCount("partial"); count != 1 {
		t.Errorf("Expected 1 result from the healthy source, got %d", count)
	}

	config = testConfig("broken", bad.URL)
	if err := NewPollMonitorTask(config, env.deps).Execute(context.Background()); err == nil {
		t.Error("Expected error when every source fails")
	}
}

func TestPollMonitorTask_DisabledMonitor(t *testing.T) {
	env := newTestEnv(t)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	config := testConfig("off", srv.URL)
	config.Settings.Enabled = false
	if err := NewPollMonitorTask(config, env.deps).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if requests != 0 {
		t.Errorf("Expected no fetches for disabled monitor, got %d", requests)
	}
}

func TestPollMonitorTask_MaxItemsAndNoDiscovery(t *testing.T) {
	env := newTestEnv(t)
	srv := serveFeed(t, rssFeed("Spreadsheets one", "Acme pricing two", "Acme pricing three"))

	config := testConfig("capped", srv.URL)
	config.Settings.MaxItems = 2
	env.deps.Discovery = nil

	if err := NewPollMonitorTask(config, env.deps).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if count, _ := env.results.GetResultCount("capped"); count != 1 {
		t.Errorf("Expected only the first two items to be considered, got %d results", count)
	}
	if len(env.discovery.quickCalls) != 0 {
		t.Error("Expected no discovery without a matcher")
	}
}

func TestPollMonitorTask_ExtractContent(t *testing.T) {
	env := newTestEnv(t)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><guid>a1</guid><title>Interesting read</title><link>%s/article</link></item>
</channel></rss>`, srv.URL)
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Read</title></head><body><article>
<p>We compared every vendor on the market and Acme came out on top for pricing and support, which surprised the whole team after months of evaluation.</p>
<p>The onboarding took a single afternoon. Our engineers liked the API and our managers liked the reports, which is rare for any tool we have adopted before.</p>
</article></body></html>`)
	})

	config := testConfig("extract", srv.URL+"/feed")
	config.DiscoveryPrompt = ""
	config.Settings.ExtractContent = true

	if err := NewPollMonitorTask(config, env.deps).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	results, _ := env.results.GetResults("extract", 10)
	if len(results) != 1 {
		t.Fatalf("Expected article text to produce a match, got %d results", len(results))
	}
	if !strings.Contains(results[0].Body, "onboarding took a single afternoon") {
		t.Errorf("Expected extracted body to be stored, got %q", results[0].Body)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	if got := truncate("one two three", 9); got != "one two…" {
		t.Errorf("Expected cut at word boundary, got %q", got)
	}
}
