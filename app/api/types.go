package api

import (
	"context"
	"time"

	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/database"
	"github.com/lysyi3m/mention-comb/app/discovery"
	"github.com/lysyi3m/mention-comb/app/feed"
	"github.com/lysyi3m/mention-comb/app/match"
	"github.com/lysyi3m/mention-comb/app/monitor"
	"github.com/lysyi3m/mention-comb/app/tasks"
)

type GeneratorInterface interface {
	Run(monitor database.Monitor, results []database.Result) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// FeedCache stores rendered RSS documents. *cache.Cache implements it.
type FeedCache interface {
	GetFeed(ctx context.Context, monitorName string) (string, bool, error)
	SetFeed(ctx context.Context, monitorName, rss string, ttl time.Duration) error
}

type healthChecker interface {
	Health(ctx context.Context) map[string]any
}

// DiscoveryService is the on-demand LLM matcher. *discovery.Matcher implements it.
type DiscoveryService interface {
	MatchFull(ctx context.Context, item content.Item, discoveryPrompt, companyName string) (discovery.Outcome, error)
	MatchQuick(ctx context.Context, item content.Item, discoveryPrompt string) (discovery.QuickOutcome, error)
}

var _ DiscoveryService = (*discovery.Matcher)(nil)

// HandlerDeps wires a Handler. Discovery, FeedCache and Scheduler may be nil.
type HandlerDeps struct {
	ConfigCache  *monitor.ConfigCache
	MonitorRepo  database.MonitorRepository
	ResultRepo   database.ResultRepository
	UsageRepo    database.UsageRepository
	Generator    GeneratorInterface
	Matcher      *match.Matcher
	Discovery    DiscoveryService
	FeedCache    FeedCache
	FeedCacheTTL time.Duration
	Scheduler    tasks.TaskSchedulerInterface
	Version      string
}

type Handler struct {
	HandlerDeps
}

type itemRequest struct {
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	Platform  string `json:"platform"`
	Subreddit string `json:"subreddit"`
	Link      string `json:"link"`
}

func (r itemRequest) item() content.Item {
	return content.Item{
		GUID:      r.GUID,
		Title:     r.Title,
		Body:      r.Body,
		Author:    r.Author,
		Platform:  r.Platform,
		Subreddit: r.Subreddit,
		Link:      r.Link,
	}
}

type matchRequest struct {
	Item   itemRequest  `json:"item"`
	Config match.Config `json:"config"`
}

type validateQueryRequest struct {
	Query string `json:"query"`
}

type discoveryRequest struct {
	Item            itemRequest `json:"item"`
	DiscoveryPrompt string      `json:"discovery_prompt" binding:"required"`
	CompanyName     string      `json:"company_name"`
	Tier            string      `json:"tier"`
}
