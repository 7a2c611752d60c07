package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/analytics-service/internal/app/model"
)

// CounterRepository keeps the real-time ingestion counters. Counters are never
// reset and are unrelated to any time window.
type CounterRepository interface {
	Increment(ctx context.Context, eventType string) error
	Snapshot(ctx context.Context) (*model.RealtimeCounters, error)
}

type redisCounterRepository struct {
	client *redis.Client
}

// NewRedisCounterRepository returns a CounterRepository built on Redis INCR.
func NewRedisCounterRepository(client *redis.Client) CounterRepository {
	return &redisCounterRepository{client: client}
}

func (r *redisCounterRepository) Increment(ctx context.Context, eventType string) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, model.EventCountKey(eventType))
		pipe.Incr(ctx, model.TotalEventsKey)
		return nil
	})
	return err
}

func (r *redisCounterRepository) Snapshot(ctx context.Context) (*model.RealtimeCounters, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, model.EventCountKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan counters: %w", err)
	}

	counters := &model.RealtimeCounters{ByType: make(map[string]int64, len(keys))}

	total, err := r.client.Get(ctx, model.TotalEventsKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get %s: %w", model.TotalEventsKey, err)
	}
	counters.TotalEvents = total

	if len(keys) == 0 {
		return counters, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	for i, key := range keys {
		raw, ok := values[i].(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", key, err)
		}
		counters.ByType[strings.TrimPrefix(key, model.EventCountKeyPrefix)] = n
	}
	return counters, nil
}

// MemoryCounterRepository is an in-process CounterRepository guarded by a mutex.
type MemoryCounterRepository struct {
	mu     sync.RWMutex
	total  int64
	byType map[string]int64
}

// NewMemoryCounterRepository returns zeroed counters.
func NewMemoryCounterRepository() *MemoryCounterRepository {
	return &MemoryCounterRepository{byType: make(map[string]int64)}
}

func (m *MemoryCounterRepository) Increment(ctx context.Context, eventType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.byType[eventType]++
	m.total++
	return nil
}

// Snapshot copies the counters under the read lock.
func (m *MemoryCounterRepository) Snapshot(ctx context.Context) (*model.RealtimeCounters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[string]int64, len(m.byType))
	for k, v := range m.byType {
		byType[k] = v
	}
	return &model.RealtimeCounters{TotalEvents: m.total, ByType: byType}, ctx.Err()
}
