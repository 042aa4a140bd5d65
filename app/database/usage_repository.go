package database

import (
	"fmt"
	"time"
)

var _ UsageRepository = (*UsageRepo)(nil)

type UsageRepo struct {
	db *DB
}

func NewUsageRepository(db *DB) *UsageRepo {
	return &UsageRepo{db: db}
}

func (r *UsageRepo) RecordUsage(u Usage) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO llm_usage (monitor_name, tier, model, prompt_tokens, completion_tokens, latency_ms, cost, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.MonitorName, u.Tier, u.Model, u.PromptTokens, u.CompletionTokens, u.LatencyMs, u.Cost, u.Cached, toUnix(createdAt))
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// GetUsageSummary aggregates calls for monitorName made at or after since.
// An empty monitorName covers all monitors.
func (r *UsageRepo) GetUsageSummary(monitorName string, since time.Time) (UsageSummary, error) {
	var summary UsageSummary
	err := r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(cached), 0), COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(cost), 0)
		FROM llm_usage
		WHERE (? = '' OR monitor_name = ?) AND created_at >= ?
	`, monitorName, monitorName, toUnix(since)).Scan(
		&summary.Calls, &summary.CachedCalls, &summary.PromptTokens, &summary.CompletionTokens, &summary.Cost)
	if err != nil {
		return UsageSummary{}, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return summary, nil
}
