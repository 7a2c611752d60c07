package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/analytics-service/internal/app/cache"
	"github.com/sifan077/analytics-service/internal/app/model"
	"github.com/sifan077/analytics-service/internal/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo wraps a repository and counts Count calls, one per aggregation.
type countingRepo struct {
	repository.EventRepository
	computes atomic.Int32
}

func (c *countingRepo) Count(ctx context.Context, w model.Window) (int64, error) {
	c.computes.Add(1)
	return c.EventRepository.Count(ctx, w)
}

func TestDashboardService_ServesFromCacheWithinTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	events := repository.NewMemoryEventRepository(tickingClock(testNow.Add(-time.Minute), time.Second))
	repo := &countingRepo{EventRepository: events}
	seedEvents(t, repo, model.Event{UserID: int64Ptr(1), EventType: "click"})

	svc := NewDashboardService(DashboardDeps{
		Cache:      cache.NewRedisDashboardCache(client, cache.DefaultTTL),
		Aggregator: NewAggregator(AggregatorDeps{Events: repo, Now: tickingClock(testNow, time.Second)}),
	})
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, 7)
	require.NoError(t, err)
	second, err := svc.Dashboard(ctx, 7)
	require.NoError(t, err)

	assert.EqualValues(t, 1, repo.computes.Load())
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))

	// New events do not invalidate the cached dashboard.
	seedEvents(t, repo, model.Event{UserID: int64Ptr(2), EventType: "view"})
	stale, err := svc.Dashboard(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stale.TotalEvents)

	mr.FastForward(cache.DefaultTTL)
	fresh, err := svc.Dashboard(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.computes.Load())
	assert.EqualValues(t, 2, fresh.TotalEvents)
}

func TestDashboardService_KeyedByDays(t *testing.T) {
	events := repository.NewMemoryEventRepository(nil)
	repo := &countingRepo{EventRepository: events}
	svc := NewDashboardService(DashboardDeps{
		Cache:      cache.NewMemoryDashboardCache(8, time.Minute),
		Aggregator: NewAggregator(AggregatorDeps{Events: repo}),
	})

	for _, days := range []int{1, 7, 1, 30, 7} {
		dashboard, err := svc.Dashboard(context.Background(), days)
		require.NoError(t, err)
		assert.Equal(t, days, dashboard.WindowDays)
	}
	assert.EqualValues(t, 3, repo.computes.Load())
}

func TestDashboardService_CacheReadError(t *testing.T) {
	boom := errors.New("cache down")
	svc := NewDashboardService(DashboardDeps{
		Cache: &mockDashboardCache{getFn: func(context.Context, int) (*model.Dashboard, bool, error) {
			return nil, false, boom
		}},
		Aggregator: newAggregator(&mockEventRepository{}),
	})

	_, err := svc.Dashboard(context.Background(), 7)
	assert.ErrorIs(t, err, boom)
}

func TestDashboardService_CacheWriteError(t *testing.T) {
	boom := errors.New("cache down")
	svc := NewDashboardService(DashboardDeps{
		Cache: &mockDashboardCache{setFn: func(context.Context, int, *model.Dashboard) error {
			return boom
		}},
		Aggregator: newAggregator(&mockEventRepository{}),
	})

	_, err := svc.Dashboard(context.Background(), 7)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "write dashboard cache")
}

func TestDashboardService_AggregationErrorNotCached(t *testing.T) {
	var sets int
	svc := NewDashboardService(DashboardDeps{
		Cache: &mockDashboardCache{setFn: func(context.Context, int, *model.Dashboard) error {
			sets++
			return nil
		}},
		Aggregator: newAggregator(&mockEventRepository{
			countFn: func(context.Context, model.Window) (int64, error) { return 0, errors.New("timeout") },
		}),
	})

	_, err := svc.Dashboard(context.Background(), 7)
	assert.Error(t, err)
	assert.Zero(t, sets)
}

func TestDashboardService_InvalidDays(t *testing.T) {
	svc := NewDashboardService(DashboardDeps{Cache: &mockDashboardCache{}, Aggregator: newAggregator(&mockEventRepository{})})
	for _, days := range []int{0, model.MaxWindowDays + 1} {
		_, err := svc.Dashboard(context.Background(), days)
		assert.ErrorIs(t, err, ErrInvalidDays)
	}
}
