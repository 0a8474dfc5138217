package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/application/query"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/infrastructure/archive"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

type warmerFunc func(ctx context.Context, pages int) (int, error)

func (f warmerFunc) WarmLeaderboard(ctx context.Context, pages int) (int, error) { return f(ctx, pages) }

type auditorFunc func(ctx context.Context) (*query.AuditLedgerResult, error)

func (f auditorFunc) AuditLedger(ctx context.Context) (*query.AuditLedgerResult, error) { return f(ctx) }

type archiverFunc func(ctx context.Context) (*archive.Result, error)

func (f archiverFunc) Archive(ctx context.Context) (*archive.Result, error) { return f(ctx) }

func TestWarmLeaderboardJob(t *testing.T) {
	var got int
	job := NewWarmLeaderboardJob(warmerFunc(func(_ context.Context, pages int) (int, error) {
		got = pages
		return pages, nil
	}), 3, logger.Discard())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, got)
	assert.Equal(t, "warm_leaderboard", job.Name())
}

func TestAuditLedgerJob(t *testing.T) {
	t.Run("consistent", func(t *testing.T) {
		job := NewAuditLedgerJob(auditorFunc(func(context.Context) (*query.AuditLedgerResult, error) {
			return &query.AuditLedgerResult{CheckedAt: time.Now()}, nil
		}), logger.Discard())
		assert.NoError(t, job.Run(context.Background()))
	})

	t.Run("mismatch", func(t *testing.T) {
		job := NewAuditLedgerJob(auditorFunc(func(context.Context) (*query.AuditLedgerResult, error) {
			return &query.AuditLedgerResult{Discrepancies: []progression.LedgerDiscrepancy{
				{UserID: "alice", TotalXP: 120, LedgerSum: 100},
			}}, nil
		}), logger.Discard())
		err := job.Run(context.Background())
		assert.ErrorIs(t, err, ErrLedgerMismatch)
		assert.Contains(t, err.Error(), "1 users")
	})
}

func TestArchiveLeaderboardJob_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	job := NewArchiveLeaderboardJob(archiverFunc(func(context.Context) (*archive.Result, error) {
		return nil, boom
	}))
	assert.ErrorIs(t, job.Run(context.Background()), boom)
}
