package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/database"
	"github.com/lysyi3m/mention-comb/app/discovery"
	"github.com/lysyi3m/mention-comb/app/feed"
	"github.com/lysyi3m/mention-comb/app/match"
	"github.com/lysyi3m/mention-comb/app/monitor"
	"github.com/lysyi3m/mention-comb/app/tasks"
)

const testAPIKey = "secret"

type MockMonitorRepository struct {
	monitors map[string]*database.Monitor
}

func (m *MockMonitorRepository) GetMonitor(name string) (*database.Monitor, error) {
	return m.monitors[name], nil
}

func (m *MockMonitorRepository) GetMonitors() ([]database.Monitor, error) {
	out := make([]database.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		out = append(out, *mon)
	}
	return out, nil
}

func (m *MockMonitorRepository) GetMonitorCount() (int, error) {
	return len(m.monitors), nil
}

func (m *MockMonitorRepository) UpsertMonitor(name, companyName, discoveryPrompt string, enabled bool) error {
	m.monitors[name] = &database.Monitor{Name: name, CompanyName: companyName, DiscoveryPrompt: discoveryPrompt, Enabled: enabled}
	return nil
}

func (m *MockMonitorRepository) UpdatePollStatus(name string, polledAt, nextPoll time.Time, lastError string) error {
	return nil
}

type MockResultRepository struct {
	results   []database.Result
	lastLimit int
}

func (m *MockResultRepository) SaveResult(r database.Result) (bool, error) {
	m.results = append(m.results, r)
	return true, nil
}

func (m *MockResultRepository) GetResults(monitorName string, limit int) ([]database.Result, error) {
	m.lastLimit = limit
	return m.results[:min(limit, len(m.results))], nil
}

func (m *MockResultRepository) GetResultCount(monitorName string) (int, error) {
	return len(m.results), nil
}

type MockUsageRepository struct{}

func (m *MockUsageRepository) RecordUsage(u database.Usage) error { return nil }

func (m *MockUsageRepository) GetUsageSummary(monitorName string, since time.Time) (database.UsageSummary, error) {
	return database.UsageSummary{Calls: 3, CachedCalls: 1, Cost: 0.002}, nil
}

type MockFeedCache struct {
	feeds map[string]string
	sets  int
}

func (m *MockFeedCache) GetFeed(ctx context.Context, monitorName string) (string, bool, error) {
	rss, ok := m.feeds[monitorName]
	return rss, ok, nil
}

func (m *MockFeedCache) SetFeed(ctx context.Context, monitorName, rss string, ttl time.Duration) error {
	m.feeds[monitorName] = rss
	m.sets++
	return nil
}

type MockScheduler struct {
	polls    []string
	enqueued []tasks.TaskInterface
	pollErr  error
}

func (m *MockScheduler) Start() {}
func (m *MockScheduler) Stop()  {}

func (m *MockScheduler) EnqueueTask(task tasks.TaskInterface) error {
	m.enqueued = append(m.enqueued, task)
	return nil
}

func (m *MockScheduler) TriggerPoll(monitorName string) error {
	if m.pollErr != nil {
		return m.pollErr
	}
	m.polls = append(m.polls, monitorName)
	return nil
}

type MockDiscovery struct {
	outcome discovery.Outcome
	err     error
}

func (m *MockDiscovery) MatchFull(ctx context.Context, item content.Item, discoveryPrompt, companyName string) (discovery.Outcome, error) {
	return m.outcome, m.err
}

func (m *MockDiscovery) MatchQuick(ctx context.Context, item content.Item, discoveryPrompt string) (discovery.QuickOutcome, error) {
	if m.err != nil {
		return discovery.QuickOutcome{}, m.err
	}
	return discovery.QuickOutcome{QuickResult: discovery.QuickResult{IsMatch: true, Confidence: 0.8}}, nil
}

type testServer struct {
	handler   *Handler
	router    http.Handler
	results   *MockResultRepository
	scheduler *MockScheduler
}

func newTestServer(t *testing.T, mutate func(*HandlerDeps)) *testServer {
	t.Helper()

	dir := t.TempDir()
	config := `
company_name: "Acme"
keywords: ["pricing"]
sources:
  - url: "https://www.reddit.com/r/startups/new/.rss"
    platform: reddit
settings:
  max_items: 2
`
	if err := os.WriteFile(filepath.Join(dir, "acme.yml"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	configCache := monitor.NewConfigCache(dir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	results := &MockResultRepository{}
	for i := range 3 {
		results.results = append(results.results, database.Result{
			MonitorName: "acme",
			GUID:        fmt.Sprintf("guid-%d", i),
			Title:       fmt.Sprintf("Acme pricing question %d", i),
			Link:        fmt.Sprintf("https://example.com/%d", i),
			PublishedAt: now.Add(-time.Duration(i) * time.Hour),
			Matcher:     database.MatcherPriority,
			MatchType:   string(match.TypeCompany),
		})
	}

	scheduler := &MockScheduler{}
	deps := HandlerDeps{
		ConfigCache: configCache,
		MonitorRepo: &MockMonitorRepository{monitors: map[string]*database.Monitor{
			"acme": {ID: 1, Name: "acme", CompanyName: "Acme", Enabled: true, UpdatedAt: now},
		}},
		ResultRepo: results,
		UsageRepo:  &MockUsageRepository{},
		Generator:  feed.NewGenerator("http://localhost:8080", "test"),
		Matcher:    match.NewMatcher(),
		Scheduler:  scheduler,
		Version:    "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	handler := NewHandler(deps)
	return &testServer{
		handler:   handler,
		router:    NewServer(handler, testAPIKey),
		results:   results,
		scheduler: scheduler,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestGetFeed(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/monitors/acme/feed", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Expected XML content type, got %s", ct)
	}
	if w.Header().Get("X-Feed-Items") != "2" {
		t.Errorf("Expected max_items to cap the feed at 2, got %s", w.Header().Get("X-Feed-Items"))
	}
	if s.results.lastLimit != 2 {
		t.Errorf("Expected results limit 2, got %d", s.results.lastLimit)
	}
	if !strings.Contains(w.Body.String(), "Acme pricing question 0") {
		t.Error("Expected feed to contain the newest result")
	}
}

func TestGetFeed_UnknownMonitor(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/monitors/missing/feed", "", false)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetFeed_Cache(t *testing.T) {
	feedCache := &MockFeedCache{feeds: map[string]string{}}
	s := newTestServer(t, func(d *HandlerDeps) {
		d.FeedCache = feedCache
		d.FeedCacheTTL = time.Minute
	})

	first := s.do(t, http.MethodGet, "/monitors/acme/feed", "", false)
	if first.Header().Get("X-Cache") != "MISS" {
		t.Errorf("Expected first request to miss, got %s", first.Header().Get("X-Cache"))
	}
	if feedCache.sets != 1 {
		t.Errorf("Expected feed to be cached once, got %d", feedCache.sets)
	}

	second := s.do(t, http.MethodGet, "/monitors/acme/feed", "", false)
	if second.Header().Get("X-Cache") != "HIT" {
		t.Errorf("Expected second request to hit, got %s", second.Header().Get("X-Cache"))
	}
	if second.Body.String() != first.Body.String() {
		t.Error("Expected cached feed to equal generated feed")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["loaded_configurations"] != float64(1) {
		t.Errorf("Expected 1 loaded configuration, got %v", body["loaded_configurations"])
	}
	if body["discovery"] != false {
		t.Errorf("Expected discovery disabled, got %v", body["discovery"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/metrics", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/monitors", "", false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bearer key, got %d", rec.Code)
	}
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	s := newTestServer(t, nil)
	router := NewServer(s.handler, "")

	req := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when API is disabled, got %d", w.Code)
	}
}

func TestAPIListMonitors(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/monitors", "", true)
	body := decodeBody(t, w)
	if body["total"] != float64(1) {
		t.Fatalf("Expected 1 monitor, got %v", body["total"])
	}
	monitors := body["monitors"].([]any)
	first := monitors[0].(map[string]any)
	if first["name"] != "acme" || first["result_count"] != float64(3) {
		t.Errorf("Expected acme with 3 results, got %v", first)
	}
}

func TestAPIGetMonitorDetails(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/monitors/acme", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	usage, ok := body["usage_30d"].(map[string]any)
	if !ok || usage["calls"] != float64(3) {
		t.Errorf("Expected usage summary with 3 calls, got %v", body["usage_30d"])
	}

	w = s.do(t, http.MethodGet, "/api/monitors/missing", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestAPIListResults(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/monitors/acme/results?limit=1", "", true)
	body := decodeBody(t, w)
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 result, got %v", body["total"])
	}

	w = s.do(t, http.MethodGet, "/api/monitors/acme/results?limit=abc", "", true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/monitors/acme/results", "", true)
	if s.results.lastLimit != defaultResultsLimit {
		t.Errorf("Expected default limit %d, got %d", defaultResultsLimit, s.results.lastLimit)
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestAPITriggerPoll(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/monitors/acme/poll", "", true)
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}
	if len(s.scheduler.polls) != 1 || s.scheduler.polls[0] != "acme" {
		t.Errorf("Expected poll for acme, got %v", s.scheduler.polls)
	}

	s.scheduler.pollErr = fmt.Errorf("monitor 'acme' is disabled")
	w = s.do(t, http.MethodPost, "/api/monitors/acme/poll", "", true)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestAPIReloadMonitor(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/monitors/acme/reload", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(s.scheduler.enqueued) != 1 || s.scheduler.enqueued[0].GetType() != tasks.TaskTypeSyncMonitorConfig {
		t.Errorf("Expected one sync task, got %v", s.scheduler.enqueued)
	}
}

func TestAPIMatch(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"item":{"title":"Thinking about Acme pricing"},"config":{"company_name":"Acme","keywords":["pricing"]}}`
	w := s.do(t, http.MethodPost, "/api/match", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result match.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Matches || result.MatchType != match.TypeCompanyKeyword {
		t.Errorf("Expected company_keyword match, got %+v", result)
	}

	w = s.do(t, http.MethodPost, "/api/match", "{not json", true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid body, got %d", w.Code)
	}
}

func TestAPIValidateQuery(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/query/validate", `{"query":"acme AND (pricing OR cost)"}`, true)
	body := decodeBody(t, w)
	if body["valid"] != true || body["expression"] == "" {
		t.Errorf("Expected valid query with expression, got %v", body)
	}

	w = s.do(t, http.MethodPost, "/api/query/validate", `{"query":"(acme"}`, true)
	body = decodeBody(t, w)
	if body["valid"] != false || body["error"] == nil {
		t.Errorf("Expected invalid query with error, got %v", body)
	}
}

func TestAPIDiscoveryMatch(t *testing.T) {
	mock := &MockDiscovery{outcome: discovery.Outcome{
		Result: discovery.Result{IsMatch: true, RelevanceScore: 0.9, MatchType: discovery.MatchSemantic, Reasoning: "asks for a tool"},
	}}
	s := newTestServer(t, func(d *HandlerDeps) { d.Discovery = mock })

	body := `{"item":{"title":"Looking for a PM tool"},"discovery_prompt":"People looking for PM software"}`
	w := s.do(t, http.MethodPost, "/api/discovery/match", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var outcome discovery.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &outcome); err != nil {
		t.Fatal(err)
	}
	if !outcome.Result.IsMatch || outcome.Result.MatchType != discovery.MatchSemantic {
		t.Errorf("Expected semantic match, got %+v", outcome.Result)
	}

	quick := `{"item":{"body":"need a tool"},"discovery_prompt":"p","tier":"quick"}`
	w = s.do(t, http.MethodPost, "/api/discovery/match", quick, true)
	if !strings.Contains(w.Body.String(), `"confidence":0.8`) {
		t.Errorf("Expected quick outcome, got %s", w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/discovery/match", `{"item":{"title":"x"},"discovery_prompt":"p","tier":"huge"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown tier, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/discovery/match", `{"item":{},"discovery_prompt":"p"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty item, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/discovery/match", `{"item":{"title":"x"}}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without discovery prompt, got %d", w.Code)
	}
}

func TestAPIDiscoveryMatch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"schema mismatch", fmt.Errorf("full discovery match: %w", discovery.ErrSchemaMismatch), http.StatusBadGateway},
		{"provider error", fmt.Errorf("provider unavailable"), http.StatusBadGateway},
		{"timeout", fmt.Errorf("call: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(d *HandlerDeps) { d.Discovery = &MockDiscovery{err: tt.err} })

			w := s.do(t, http.MethodPost, "/api/discovery/match", `{"item":{"title":"x"},"discovery_prompt":"p"}`, true)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestAPIDiscoveryMatch_NotConfigured(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/discovery/match", `{"item":{"title":"x"},"discovery_prompt":"p"}`, true)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

type MockHealthyFeedCache struct {
	MockFeedCache
}

func (m *MockHealthyFeedCache) Health(ctx context.Context) map[string]any {
	return map[string]any{"status": "healthy"}
}

func TestHealth_ReportsRedis(t *testing.T) {
	s := newTestServer(t, func(d *HandlerDeps) {
		d.FeedCache = &MockHealthyFeedCache{MockFeedCache{feeds: map[string]string{}}}
	})

	body := decodeBody(t, s.do(t, http.MethodGet, "/health", "", false))
	redis, ok := body["redis"].(map[string]any)
	if !ok || redis["status"] != "healthy" {
		t.Errorf("Expected redis health, got %v", body["redis"])
	}
}
