package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/analytics-service/internal/app/model"
)

// DefaultTTL bounds how stale a cached dashboard may be.
const DefaultTTL = 300 * time.Second

// DashboardCache memoizes dashboards per window size. Entries expire a fixed
// TTL after Set and are never invalidated by new events. Concurrent writers
// for the same key are last-write-wins.
type DashboardCache interface {
	Get(ctx context.Context, days int) (*model.Dashboard, bool, error)
	Set(ctx context.Context, days int, dashboard *model.Dashboard) error
}

// Key returns the cache key for a window size.
func Key(days int) string {
	return fmt.Sprintf("dashboard:%d", days)
}

type redisDashboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDashboardCache stores dashboards as JSON strings with SET EX.
func NewRedisDashboardCache(client *redis.Client, ttl time.Duration) DashboardCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisDashboardCache{client: client, ttl: ttl}
}

func (c *redisDashboardCache) Get(ctx context.Context, days int) (*model.Dashboard, bool, error) {
	key := Key(days)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var dashboard model.Dashboard
	if err := json.Unmarshal(data, &dashboard); err != nil {
		// Unreadable entries are treated as a miss. A failed Del leaves the
		// entry for the next Set to overwrite.
		_ = c.client.Del(ctx, key).Err()
		return nil, false, nil
	}
	return &dashboard, true, nil
}

func (c *redisDashboardCache) Set(ctx context.Context, days int, dashboard *model.Dashboard) error {
	data, err := json.Marshal(dashboard)
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	key := Key(days)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// MemoryDashboardCache is an in-process LRU with a fixed TTL per entry.
type MemoryDashboardCache struct {
	entries *lru.LRU[int, *model.Dashboard]
}

// NewMemoryDashboardCache keeps at most size dashboards.
func NewMemoryDashboardCache(size int, ttl time.Duration) *MemoryDashboardCache {
	if size <= 0 {
		size = 64
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryDashboardCache{entries: lru.NewLRU[int, *model.Dashboard](size, nil, ttl)}
}

func (c *MemoryDashboardCache) Get(_ context.Context, days int) (*model.Dashboard, bool, error) {
	dashboard, ok := c.entries.Get(days)
	return dashboard, ok, nil
}

func (c *MemoryDashboardCache) Set(_ context.Context, days int, dashboard *model.Dashboard) error {
	c.entries.Add(days, dashboard)
	return nil
}
