package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client, "test:"), mr
}

func samplePage(page, limit int) *leaderboard.Page {
	req := leaderboard.PageRequest{Page: page, Limit: limit}
	return &leaderboard.Page{
		Rows: []leaderboard.Row{
			{Rank: 1, UserID: "alice", TotalXP: 500, Level: 3},
			{Rank: 2, UserID: "bob", TotalXP: 300, Level: 2},
		},
		Pagination:  leaderboard.NewPagination(req, 2),
		GeneratedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestLeaderboardCache_SetGet(t *testing.T) {
	cache, mr := newTestCache(t)
	lc := NewLeaderboardCache(cache)
	ctx := context.Background()

	_, err := lc.GetPage(ctx, 1, 20)
	assert.ErrorIs(t, err, shared.ErrCacheMiss)

	require.NoError(t, lc.SetPage(ctx, samplePage(1, 20), time.Minute))

	got, err := lc.GetPage(ctx, 1, 20)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "alice", got.Rows[0].UserID)
	assert.Equal(t, 2, got.Pagination.Total)

	// Different limit is a different key.
	_, err = lc.GetPage(ctx, 1, 10)
	assert.ErrorIs(t, err, shared.ErrCacheMiss)

	mr.FastForward(2 * time.Minute)
	_, err = lc.GetPage(ctx, 1, 20)
	assert.ErrorIs(t, err, shared.ErrCacheMiss)
}

func TestLeaderboardCache_InvalidateBumpsGeneration(t *testing.T) {
	cache, _ := newTestCache(t)
	lc := NewLeaderboardCache(cache)
	ctx := context.Background()

	require.NoError(t, lc.SetPage(ctx, samplePage(1, 20), time.Minute))
	require.NoError(t, lc.SetPage(ctx, samplePage(2, 20), time.Minute))

	require.NoError(t, lc.Invalidate(ctx))
	gen, err := lc.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	_, err = lc.GetPage(ctx, 1, 20)
	assert.ErrorIs(t, err, shared.ErrCacheMiss)
	_, err = lc.GetPage(ctx, 2, 20)
	assert.ErrorIs(t, err, shared.ErrCacheMiss)

	require.NoError(t, lc.SetPage(ctx, samplePage(1, 20), time.Minute))
	_, err = lc.GetPage(ctx, 1, 20)
	assert.NoError(t, err)
}

func TestLeaderboardCache_RedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	lc := NewLeaderboardCache(cache)
	mr.Close()

	_, err := lc.GetPage(context.Background(), 1, 20)
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrCacheMiss)
}

func TestCache_Validation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, cache.Set(ctx, "", 1, time.Second), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(ctx, "k", nil, time.Second), ErrCacheNilValue)
	assert.ErrorIs(t, cache.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.Equal(t, "test:a:b", cache.Key("a", "b"))
}

func TestJobLocker(t *testing.T) {
	cache, mr := newTestCache(t)
	locker := NewJobLocker(cache, 10*time.Second)
	ctx := context.Background()

	lock, err := locker.Lock(ctx, "archive")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "archive")
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Unlock(ctx))
	again, err := locker.Lock(ctx, "archive")
	require.NoError(t, err)

	// An expired lock taken over by someone else is not released by the old holder.
	mr.FastForward(11 * time.Second)
	other, err := locker.Lock(ctx, "archive")
	require.NoError(t, err)
	require.NoError(t, again.Unlock(ctx))
	assert.True(t, mr.Exists("test:lock:archive"))
	require.NoError(t, other.Unlock(ctx))
	assert.False(t, mr.Exists("test:lock:archive"))
}
