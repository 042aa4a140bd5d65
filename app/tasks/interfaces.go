package tasks

import (
	"context"

	"github.com/lysyi3m/mention-comb/app/content"
	"github.com/lysyi3m/mention-comb/app/discovery"
)

// TaskSchedulerInterface is the background task processing used by main and the API.
//
//	scheduler := NewScheduler(configCache, deps, interval, workerCount)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.TriggerPoll("acme")
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerPoll(monitorName string) error
}

// DiscoveryMatcher is the LLM stage of a poll. *discovery.Matcher implements it.
type DiscoveryMatcher interface {
	MatchQuickBatch(ctx context.Context, items []content.Item, discoveryPrompt string) ([]discovery.QuickOutcome, error)
	MatchBatch(ctx context.Context, items []content.Item, discoveryPrompt, companyName string) ([]discovery.Outcome, error)
}

// FeedInvalidator drops a monitor's cached RSS document after new results.
type FeedInvalidator interface {
	InvalidateFeed(ctx context.Context, monitorName string) error
}

var _ DiscoveryMatcher = (*discovery.Matcher)(nil)
