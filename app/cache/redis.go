package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/mention-comb/app/discovery"
)

// Cache wraps a Redis client for discovery verdicts and rendered feeds.
type Cache struct {
	client *redis.Client
}

func NewCache(ctx context.Context, addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return &Cache{client: client}, nil
}

// GetOutcome returns nil, nil on a miss. Undecodable entries are dropped and
// reported as a miss.
func (c *Cache) GetOutcome(ctx context.Context, key string) (*discovery.Outcome, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	var outcome discovery.Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		slog.Warn("Dropping invalid cached outcome", "key", key, "error", err)
		c.client.Del(ctx, key)
		return nil, nil
	}

	return &outcome, nil
}

func (c *Cache) SetOutcome(ctx context.Context, key string, outcome discovery.Outcome, ttl time.Duration) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// FeedKey is the cache key of a monitor's rendered RSS document.
func FeedKey(monitorName string) string {
	hash := sha256.Sum256([]byte(monitorName))
	return fmt.Sprintf("feed:%x", hash[:8])
}

// GetFeed returns the cached RSS document for a monitor and whether it was found.
func (c *Cache) GetFeed(ctx context.Context, monitorName string) (string, bool, error) {
	data, err := c.client.Get(ctx, FeedKey(monitorName)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get feed %s: %w", monitorName, err)
	}
	return data, true, nil
}

func (c *Cache) SetFeed(ctx context.Context, monitorName, rss string, ttl time.Duration) error {
	if err := c.client.Set(ctx, FeedKey(monitorName), rss, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set feed %s: %w", monitorName, err)
	}
	return nil
}

// InvalidateFeed drops the rendered feed after new results are stored.
func (c *Cache) InvalidateFeed(ctx context.Context, monitorName string) error {
	if err := c.client.Del(ctx, FeedKey(monitorName)).Err(); err != nil {
		return fmt.Errorf("failed to delete feed %s: %w", monitorName, err)
	}
	return nil
}

func (c *Cache) Health(ctx context.Context) map[string]any {
	health := map[string]any{
		"status": "healthy",
		"type":   "redis",
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if size, err := c.client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = size
	}

	return health
}

func (c *Cache) Close() error {
	return c.client.Close()
}
