package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/alem-progression/internal/application/engine"
	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

var _ engine.Store = (*Store)(nil)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]progression.LevelDefinition{
			{Number: 1, Name: "Newcomer", Slug: "newcomer", XPRequired: 0},
			{Number: 2, Name: "Learner", Slug: "learner", XPRequired: 100},
			{Number: 3, Name: "Explorer", Slug: "explorer", XPRequired: 300},
		},
		[]mission.Definition{
			{ID: "daily-login", Name: "Daily Login", Type: mission.TypeDaily,
				RequirementType: "login", RequirementCount: 1, XPReward: 10, Active: true},
			{ID: "perfect-quiz", Name: "Perfectionist", Type: mission.TypeAchievement,
				RequirementType: "perfect_quiz", RequirementCount: 2, XPReward: 50, BadgeReward: "quiz-master", Active: true},
		},
		[]badge.Definition{{ID: "quiz-master", Name: "Quiz Master"}},
		nil,
	)
	require.NoError(t, err)
	return c
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "progression.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	n, err := s.Migrate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return s
}

func newEngine(t *testing.T, s *Store) (*engine.Engine, *clockwork.FakeClock) {
	t.Helper()
	cat := testCatalog(t)
	_, err := s.SyncCatalog(context.Background(), cat)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(t0)
	eng, err := engine.New(engine.Options{
		Catalog: cat,
		Store:   s,
		Clock:   clock,
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)
	return eng, clock
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openStore(t)
	n, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncCatalog_DeactivatesRemovedMissions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	cat := testCatalog(t)

	res, err := s.SyncCatalog(ctx, cat)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Levels: 3, Badges: 1, Missions: 2}, res)

	_, err = s.db.ExecContext(ctx, `INSERT INTO missions (id, name, mission_type, requirement_type, requirement_count)
		VALUES ('old', 'Old', 'daily', 'login', 1)`)
	require.NoError(t, err)

	res, err = s.SyncCatalog(ctx, cat)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)
}

func TestStore_AwardXPAndHistory(t *testing.T) {
	s := openStore(t)
	eng, _ := newEngine(t, s)
	ctx := context.Background()

	_, err := eng.AwardXP(ctx, "alice", 60, "quiz_submitted")
	require.NoError(t, err)
	res, err := eng.AwardXP(ctx, "alice", 60, "quiz_submitted")
	require.NoError(t, err)
	assert.Equal(t, 120, res.TotalXP)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level)

	page, err := eng.GetXPHistory(ctx, "alice", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Greater(t, page.Entries[0].ID, page.Entries[1].ID)
	assert.Equal(t, 2, page.Pagination.Total)

	audit, err := eng.AuditLedger(ctx)
	require.NoError(t, err)
	assert.True(t, audit.Consistent())
}

func TestStore_ConcurrentAwardsAreAdditive(t *testing.T) {
	s := openStore(t)
	eng, _ := newEngine(t, s)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := eng.AwardXP(ctx, "bob", 7, "lesson_completed")
			return err
		})
	}
	require.NoError(t, g.Wait())

	p, err := s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 70, p.TotalXP.Int())

	sum, err := s.SumHistorySince(ctx, "bob", t0)
	require.NoError(t, err)
	assert.Equal(t, 70, sum)
}

func TestStore_MissionCompletionGrantsBadgeOnce(t *testing.T) {
	s := openStore(t)
	eng, _ := newEngine(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := eng.UpdateMissionProgress(ctx, "carol", "perfect_quiz", 1)
		require.NoError(t, err)
	}

	states, err := s.ListStates(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.True(t, states[0].IsCompleted)
	assert.Equal(t, 2, states[0].Progress)
	assert.Nil(t, states[0].ResetAt)

	p, err := s.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 50, p.TotalXP.Int())

	grants, err := s.ListGrants(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, badge.SourceMission, grants[0].Source)

	again, err := eng.AwardBadge(ctx, "carol", "quiz-master")
	require.NoError(t, err)
	assert.False(t, again.Inserted)
}

func TestStore_DailyMissionResets(t *testing.T) {
	s := openStore(t)
	eng, clock := newEngine(t, s)
	ctx := context.Background()

	_, err := eng.UpdateMissionProgress(ctx, "dan", "login", 1)
	require.NoError(t, err)
	clock.Advance(24*time.Hour + time.Second)
	res, err := eng.UpdateMissionProgress(ctx, "dan", "login", 1)
	require.NoError(t, err)
	require.Len(t, res.Missions, 1)
	assert.True(t, res.Missions[0].Reset)
	assert.True(t, res.Missions[0].Completed)

	p, err := s.Get(ctx, "dan")
	require.NoError(t, err)
	assert.Equal(t, 20, p.TotalXP.Int())
	completed, err := s.CountCompleted(ctx, "dan")
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	completions, err := s.CountCompletions(ctx, "dan")
	require.NoError(t, err)
	assert.Equal(t, 2, completions)
}

func TestStore_LeaderboardRanksAndEligibility(t *testing.T) {
	s := openStore(t)
	eng, clock := newEngine(t, s)
	ctx := context.Background()

	for _, a := range []struct {
		user   string
		amount int
	}{{"alice", 500}, {"carol", 300}, {"bob", 300}, {"root", 900}} {
		_, err := eng.AwardXP(ctx, a.user, a.amount, "manual")
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	_, err := eng.UpsertMember(ctx, "root", "admin", false)
	require.NoError(t, err)

	rows, total, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"alice", "carol", "bob"}, []string{rows[0].UserID, rows[1].UserID, rows[2].UserID})
	assert.Equal(t, []int{1, 2, 2}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank})

	rows, total, err = s.Page(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Rank)

	n, err := s.CountGreater(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m, err := s.GetMember(ctx, "root")
	require.NoError(t, err)
	assert.False(t, m.Eligible())

	_, err = s.GetMember(ctx, "nobody")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStore_GetUnknown(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrProgressionNotFound)
}
