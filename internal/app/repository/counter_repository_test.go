package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/analytics-service/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisCounterRepository_Increment(t *testing.T) {
	client, mr := setupRedis(t)
	repo := NewRedisCounterRepository(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Increment(ctx, "x"))
	}
	require.NoError(t, repo.Increment(ctx, "y"))

	got, err := mr.Get("event_count:x")
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	got, err = mr.Get(model.TotalEventsKey)
	require.NoError(t, err)
	assert.Equal(t, "4", got)
}

func TestRedisCounterRepository_Snapshot(t *testing.T) {
	client, mr := setupRedis(t)
	repo := NewRedisCounterRepository(client)
	ctx := context.Background()

	empty, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalEvents)
	assert.Empty(t, empty.ByType)

	require.NoError(t, repo.Increment(ctx, "click"))
	require.NoError(t, repo.Increment(ctx, "click"))
	require.NoError(t, repo.Increment(ctx, ""))
	require.NoError(t, mr.Set("unrelated", "nope"))

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, snap.TotalEvents)
	assert.Equal(t, map[string]int64{"click": 2, "": 1}, snap.ByType)
}

func TestRedisCounterRepository_IncrementFailure(t *testing.T) {
	client, mr := setupRedis(t)
	repo := NewRedisCounterRepository(client)
	mr.Close()

	assert.Error(t, repo.Increment(context.Background(), "click"))
}

func TestMemoryCounterRepository(t *testing.T) {
	repo := NewMemoryCounterRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Increment(ctx, "x"))
	}
	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, snap.ByType["x"])
	assert.EqualValues(t, 5, snap.TotalEvents)

	snap.ByType["x"] = 100
	again, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, again.ByType["x"])
}
