package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache implements leaderboard.Cache.
//
// Page keys embed a generation number: leaderboard:v<gen>:p<page>:l<limit>.
// Invalidate bumps the generation, so every cached page becomes unreachable
// at once and expires on its own TTL. A page loaded before an invalidation
// but written after it can survive for at most one TTL.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

func (l *LeaderboardCache) generationKey() string {
	return l.cache.Key("leaderboard", "gen")
}

func (l *LeaderboardCache) pageKey(gen int64, page, limit int) string {
	return l.cache.Key("leaderboard",
		"v"+strconv.FormatInt(gen, 10),
		"p"+strconv.Itoa(page),
		"l"+strconv.Itoa(limit))
}

// Generation returns the current generation.
func (l *LeaderboardCache) Generation(ctx context.Context) (int64, error) {
	gen, err := l.cache.GetInt(ctx, l.generationKey())
	if err != nil {
		return 0, fmt.Errorf("leaderboard cache: generation: %w", err)
	}
	return gen, nil
}

// GetPage returns the cached page or shared.ErrCacheMiss.
func (l *LeaderboardCache) GetPage(ctx context.Context, page, limit int) (*leaderboard.Page, error) {
	gen, err := l.Generation(ctx)
	if err != nil {
		return nil, err
	}

	var p leaderboard.Page
	if err := l.cache.Get(ctx, l.pageKey(gen, page, limit), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPage caches a page under the current generation.
func (l *LeaderboardCache) SetPage(ctx context.Context, p *leaderboard.Page, ttl time.Duration) error {
	if p == nil {
		return ErrCacheNilValue
	}
	gen, err := l.Generation(ctx)
	if err != nil {
		return err
	}
	key := l.pageKey(gen, p.Pagination.Page, p.Pagination.Limit)
	if err := l.cache.Set(ctx, key, p, ttl); err != nil {
		return fmt.Errorf("leaderboard cache: set %s: %w", key, err)
	}
	return nil
}

// Invalidate makes every cached page unreachable.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	if _, err := l.cache.Incr(ctx, l.generationKey()); err != nil {
		return fmt.Errorf("leaderboard cache: invalidate: %w", err)
	}
	return nil
}
