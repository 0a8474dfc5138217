// Package jobs contains the scheduled jobs of the progression engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardWarmer loads leaderboard pages into the cache.
type LeaderboardWarmer interface {
	WarmLeaderboard(ctx context.Context, pages int) (int, error)
}

// WarmLeaderboardJob refills the first leaderboard pages after the cache
// generation was bumped by XP changes.
type WarmLeaderboardJob struct {
	warmer LeaderboardWarmer
	pages  int
	logger *slog.Logger
}

// NewWarmLeaderboardJob creates the job.
func NewWarmLeaderboardJob(warmer LeaderboardWarmer, pages int, log *slog.Logger) *WarmLeaderboardJob {
	if pages <= 0 {
		pages = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &WarmLeaderboardJob{warmer: warmer, pages: pages, logger: log}
}

// Name returns the job name.
func (j *WarmLeaderboardJob) Name() string { return "warm_leaderboard" }

// Description returns a human-readable description.
func (j *WarmLeaderboardJob) Description() string {
	return fmt.Sprintf("Loads the first %d leaderboard pages into the cache", j.pages)
}

// Run executes the job.
func (j *WarmLeaderboardJob) Run(ctx context.Context) error {
	n, err := j.warmer.WarmLeaderboard(ctx, j.pages)
	if err != nil {
		return fmt.Errorf("warm leaderboard: %w", err)
	}
	j.logger.Debug("leaderboard warmed", logger.Operation(j.Name()), slog.Int("pages", n))
	return nil
}
