package api

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/mention-comb/app/discovery"
	"github.com/lysyi3m/mention-comb/app/query"
	"github.com/lysyi3m/mention-comb/app/tasks"
)

const (
	defaultResultsLimit = 50
	maxResultsLimit     = 500
	discoveryTimeout    = 60 * time.Second
)

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{HandlerDeps: deps}
}

func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	config, err := h.ConfigCache.GetConfig(name)
	if err != nil {
		slog.Error("Monitor configuration not found", "monitor", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	if h.FeedCache != nil {
		if rss, ok, err := h.FeedCache.GetFeed(c.Request.Context(), name); err != nil {
			slog.Warn("Feed cache read failed", "monitor", name, "error", err)
		} else if ok {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
			return
		}
	}

	m, err := h.MonitorRepo.GetMonitor(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_monitor", "monitor", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if m == nil {
		slog.Error("Monitor not found in database", "monitor", name)
		c.Status(http.StatusNotFound)
		return
	}

	results, err := h.ResultRepo.GetResults(name, config.Settings.MaxItems)
	if err != nil {
		slog.Error("Database error", "operation", "get_results", "monitor", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.Generator.Run(*m, results)
	if err != nil {
		slog.Error("RSS generation error", "monitor", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if h.FeedCache != nil {
		if err := h.FeedCache.SetFeed(c.Request.Context(), name, rss, h.FeedCacheTTL); err != nil {
			slog.Warn("Feed cache write failed", "monitor", name, "error", err)
		}
	}

	c.Header("X-Cache", "MISS")
	c.Header("X-Feed-Items", strconv.Itoa(len(results)))
	c.Header("X-Monitor-Name", name)
	c.Header("X-Last-Updated", m.UpdatedAt.Format(time.RFC3339))
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.Version,
		"discovery": h.Discovery != nil,
	}

	if monitorCount, err := h.MonitorRepo.GetMonitorCount(); err == nil {
		health["monitors"] = monitorCount
	}

	health["loaded_configurations"] = h.ConfigCache.GetConfigCount()

	if checker, ok := h.FeedCache.(healthChecker); ok {
		health["redis"] = checker.Health(c.Request.Context())
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListMonitors(c *gin.Context) {
	configs := h.ConfigCache.GetConfigs()

	monitors := make([]map[string]any, 0, len(configs))

	for _, config := range configs {
		info := map[string]any{
			"name":             config.Name,
			"company_name":     config.CompanyName,
			"enabled":          config.Settings.Enabled,
			"sources":          len(config.Sources),
			"discovery":        config.HasDiscovery(),
			"max_items":        config.Settings.MaxItems,
			"refresh_interval": config.RefreshInterval().String(),
		}

		if m, err := h.MonitorRepo.GetMonitor(config.Name); err == nil && m != nil {
			info["last_polled_at"] = m.LastPolledAt
			info["next_poll_at"] = m.NextPollAt
			info["last_error"] = m.LastError
		}

		if count, err := h.ResultRepo.GetResultCount(config.Name); err == nil {
			info["result_count"] = count
		}

		monitors = append(monitors, info)
	}

	c.JSON(http.StatusOK, map[string]any{
		"monitors": monitors,
		"total":    len(monitors),
	})
}

func (h *Handler) APIGetMonitorDetails(c *gin.Context) {
	name := c.Param("name")

	config, err := h.ConfigCache.GetConfig(name)
	if err != nil {
		slog.Error("Monitor configuration not found", "monitor", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor configuration not found"})
		return
	}

	m, err := h.MonitorRepo.GetMonitor(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_monitor", "monitor", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor not found in database"})
		return
	}

	details := map[string]any{
		"name":             name,
		"company_name":     config.CompanyName,
		"keywords":         config.Keywords,
		"search_query":     config.SearchQuery,
		"discovery_prompt": config.DiscoveryPrompt,
		"sources":          config.Sources,
		"enabled":          config.Settings.Enabled,
		"max_items":        config.Settings.MaxItems,
		"refresh_interval": config.RefreshInterval().String(),
		"timeout":          config.Timeout().String(),
		"quick_filter":     config.Settings.QuickFilter,
		"min_relevance":    config.Settings.MinRelevance,
	}

	details["database"] = map[string]any{
		"id":             m.ID,
		"last_polled_at": m.LastPolledAt,
		"next_poll_at":   m.NextPollAt,
		"last_error":     m.LastError,
		"created_at":     m.CreatedAt,
		"updated_at":     m.UpdatedAt,
	}

	if count, err := h.ResultRepo.GetResultCount(name); err == nil {
		details["result_count"] = count
	}

	if h.UsageRepo != nil {
		since := time.Now().UTC().Add(-30 * 24 * time.Hour)
		if usage, err := h.UsageRepo.GetUsageSummary(name, since); err == nil {
			details["usage_30d"] = usage
		}
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) APIListResults(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.ConfigCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor configuration not found"})
		return
	}

	limit := defaultResultsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxResultsLimit)
	}

	results, err := h.ResultRepo.GetResults(name, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_results", "monitor", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, gin.H{
			"guid":               r.GUID,
			"title":              r.Title,
			"author":             r.Author,
			"platform":           r.Platform,
			"subreddit":          r.Subreddit,
			"link":               r.Link,
			"published_at":       r.PublishedAt,
			"matcher":            r.Matcher,
			"match_type":         r.MatchType,
			"matched_terms":      r.MatchedTerms,
			"explanation":        r.Explanation,
			"relevance_score":    r.RelevanceScore,
			"signals":            r.Signals,
			"suggested_keywords": r.SuggestedKeywords,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"monitor": name,
		"results": out,
		"total":   len(out),
	})
}

func (h *Handler) APITriggerPoll(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.ConfigCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor configuration not found"})
		return
	}

	if err := h.Scheduler.TriggerPoll(name); err != nil {
		slog.Error("Error triggering poll", "monitor", name, "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Failed to trigger poll",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Poll enqueued",
		"monitor": name,
	})
}

func (h *Handler) APIReloadMonitor(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.ConfigCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor configuration not found"})
		return
	}

	config, err := h.ConfigCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "monitor", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	syncTask := tasks.NewSyncMonitorConfigTask(config, h.MonitorRepo)
	if err := h.Scheduler.EnqueueTask(syncTask); err != nil {
		slog.Error("Error enqueueing sync task", "monitor", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and sync task enqueued",
		"monitor": gin.H{
			"name":    name,
			"enabled": config.Settings.Enabled,
			"sources": len(config.Sources),
		},
		"tasks": []gin.H{
			{"id": syncTask.ID, "type": syncTask.Type},
		},
	})
}

// APIMatch runs the priority matcher against a single ad-hoc item.
func (h *Handler) APIMatch(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result := h.Matcher.Match(req.Item.item(), req.Config)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) APIValidateQuery(c *gin.Context) {
	var req validateQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	expr, err := query.Compile(req.Query)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"expression": expr.String(),
	})
}

func (h *Handler) APIDiscoveryMatch(c *gin.Context) {
	if h.Discovery == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Discovery matching is not configured"})
		return
	}

	var req discoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item := req.Item.item()
	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Body) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Item needs a title or a body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), discoveryTimeout)
	defer cancel()

	switch strings.ToLower(cmp.Or(strings.TrimSpace(req.Tier), discovery.TierFull)) {
	case discovery.TierQuick:
		outcome, err := h.Discovery.MatchQuick(ctx, item, req.DiscoveryPrompt)
		if err != nil {
			discoveryError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	case discovery.TierFull:
		outcome, err := h.Discovery.MatchFull(ctx, item, req.DiscoveryPrompt, req.CompanyName)
		if err != nil {
			discoveryError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be 'full' or 'quick'"})
	}
}

func discoveryError(c *gin.Context, err error) {
	slog.Error("Discovery match failed", "error", err)

	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = http.StatusGatewayTimeout
	}

	body := gin.H{"error": "Discovery match failed", "details": err.Error()}
	if errors.Is(err, discovery.ErrSchemaMismatch) {
		body["error"] = "Model response did not match the expected schema"
	}
	c.JSON(status, body)
}
