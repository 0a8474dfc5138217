package jobs

import (
	"context"
	"fmt"

	"github.com/alem-hub/alem-progression/internal/infrastructure/archive"
)

// SnapshotArchiver uploads a leaderboard snapshot.
type SnapshotArchiver interface {
	Archive(ctx context.Context) (*archive.Result, error)
}

// ArchiveLeaderboardJob stores the weekly leaderboard snapshot.
type ArchiveLeaderboardJob struct {
	archiver SnapshotArchiver
}

// NewArchiveLeaderboardJob creates the job.
func NewArchiveLeaderboardJob(archiver SnapshotArchiver) *ArchiveLeaderboardJob {
	return &ArchiveLeaderboardJob{archiver: archiver}
}

// Name returns the job name.
func (j *ArchiveLeaderboardJob) Name() string { return "archive_leaderboard" }

// Description returns a human-readable description.
func (j *ArchiveLeaderboardJob) Description() string {
	return "Uploads the weekly leaderboard snapshot to object storage"
}

// Run executes the job.
func (j *ArchiveLeaderboardJob) Run(ctx context.Context) error {
	if _, err := j.archiver.Archive(ctx); err != nil {
		return fmt.Errorf("archive leaderboard: %w", err)
	}
	return nil
}
