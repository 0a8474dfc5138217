// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY STATS
// Собирает агрегированную статистику пользователя для правил выдачи бейджей.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityStatsReader implements badge.StatsProvider over the read repositories.
type ActivityStatsReader struct {
	progressions progression.ReadRepository
	missions     mission.ReadRepository
	badges       badge.ReadRepository
}

// NewActivityStatsReader creates a new ActivityStatsReader.
func NewActivityStatsReader(
	progressions progression.ReadRepository,
	missions mission.ReadRepository,
	badges badge.ReadRepository,
) *ActivityStatsReader {
	return &ActivityStatsReader{
		progressions: progressions,
		missions:     missions,
		badges:       badges,
	}
}

// ActivityStats implements badge.StatsProvider. A user without progression
// gets zero stats at level 1.
func (r *ActivityStatsReader) ActivityStats(ctx context.Context, userID string) (badge.ActivityStats, error) {
	stats := badge.ActivityStats{UserID: userID, Level: 1}

	p, err := r.progressions.Get(ctx, userID)
	switch {
	case err == nil:
		stats.TotalXP = p.TotalXP.Int()
		stats.Level = p.CurrentLevel
	case errors.Is(err, shared.ErrProgressionNotFound):
	default:
		return stats, fmt.Errorf("get progression: %w", err)
	}

	if stats.ReasonCounts, err = r.progressions.CountByReason(ctx, userID); err != nil {
		return stats, fmt.Errorf("count by reason: %w", err)
	}
	if stats.CompletedMissions, err = r.missions.CountCompletions(ctx, userID); err != nil {
		return stats, fmt.Errorf("count mission completions: %w", err)
	}

	grants, err := r.badges.ListGrants(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("list grants: %w", err)
	}
	stats.Earned = make(map[string]bool, len(grants))
	for _, g := range grants {
		stats.Earned[g.BadgeID] = true
	}
	return stats, nil
}
