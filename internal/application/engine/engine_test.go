package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/alem-progression/config"
	"github.com/alem-hub/alem-progression/internal/application/command"
	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-progression/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (s *recordingSink) Notify(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) ofType(t notification.Type) []*notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notification.Notification
	for _, n := range s.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	eng   *Engine
	store *memory.Store
	clock *clockwork.FakeClock
	bus   *messaging.InMemoryEventBus
	sink  *recordingSink
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	levels := []progression.LevelDefinition{
		{Number: 1, Name: "Newcomer", Slug: "newcomer", XPRequired: 0},
		{Number: 2, Name: "Learner", Slug: "learner", XPRequired: 100},
		{Number: 3, Name: "Explorer", Slug: "explorer", XPRequired: 300},
	}
	missions := []mission.Definition{
		{ID: "daily-login", Name: "Daily Login", Type: mission.TypeDaily,
			RequirementType: "login", RequirementCount: 1, XPReward: 10, Active: true},
		{ID: "perfect-quiz", Name: "Perfectionist", Type: mission.TypeAchievement,
			RequirementType: "perfect_quiz", RequirementCount: 5, XPReward: 50, BadgeReward: "quiz-master", Active: true},
		{ID: "weekly-xp", Name: "Weekly Grind", Type: mission.TypeWeekly,
			RequirementType: "earn_xp", RequirementCount: 1000, XPReward: 20, Active: true},
	}
	badges := []badge.Definition{
		{ID: "quiz-master", Name: "Quiz Master"},
		{ID: "xp-300", Name: "Three Hundred"},
	}
	rules := []badge.Rule{{BadgeID: "xp-300", Description: "300 XP", Predicate: badge.MinTotalXP(300)}}

	c, err := catalog.New(levels, missions, badges, rules)
	require.NoError(t, err)
	return c
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		clock: clockwork.NewFakeClockAt(t0),
		sink:  &recordingSink{},
	}
	f.bus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
		Logger:         logger.Discard(),
	})
	t.Cleanup(func() { _ = f.bus.Close() })

	opts := Options{
		Catalog: testCatalog(t),
		Store:   f.store,
		Bus:     f.bus,
		Sink:    f.sink,
		Clock:   f.clock,
		Logger:  logger.Discard(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	eng, err := New(opts)
	require.NoError(t, err)
	f.eng = eng
	return f
}

func (f *fixture) historySum(t *testing.T, userID string) int {
	t.Helper()
	entries, _, err := f.store.ListHistory(context.Background(), userID, 0, 1000)
	require.NoError(t, err)
	sum := 0
	for _, e := range entries {
		sum += e.Amount
	}
	return sum
}

// ══════════════════════════════════════════════════════════════════════════════
// XP & LEVELS
// ══════════════════════════════════════════════════════════════════════════════

func TestAwardXP_LevelThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.AwardXP(ctx, "u1", 100, "quiz_submitted")
	require.NoError(t, err)
	assert.Equal(t, 100, res.TotalXP)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, "Learner", res.LevelName)
	assert.True(t, res.LeveledUp)

	res, err = f.eng.AwardXP(ctx, "u1", 250, "quiz_submitted")
	require.NoError(t, err)
	assert.Equal(t, 350, res.TotalXP)
	assert.Equal(t, 3, res.Level)
	assert.Equal(t, 2, res.PreviousLevel)

	f.bus.Wait()
	assert.Len(t, f.sink.ofType(notification.TypeLevelUp), 2)
}

func TestAwardXP_SequentialAwardsAddUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.eng.AwardXP(ctx, "u1", 50, "login")
	require.NoError(t, err)
	second, err := f.eng.AwardXP(ctx, "u1", 50, "login")
	require.NoError(t, err)
	assert.Equal(t, 50, first.TotalXP)
	assert.Equal(t, 100, second.TotalXP)
	assert.Greater(t, second.Entry.ID, first.Entry.ID)

	stats, err := f.eng.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, stats.TotalXP)
	assert.Equal(t, 100, f.historySum(t, "u1"))

	audit, err := f.eng.AuditLedger(ctx)
	require.NoError(t, err)
	assert.True(t, audit.Consistent())
}

func TestAwardXP_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, amount := range []int{0, -5} {
		_, err := f.eng.AwardXP(ctx, "u1", amount, "login")
		require.Error(t, err)
		assert.True(t, shared.IsValidation(err))
	}

	_, err := f.eng.AwardXP(ctx, "u1", 10, "mission_completed")
	assert.True(t, shared.IsValidation(err))

	_, err = f.eng.AwardXP(ctx, "", 10, "login")
	assert.Error(t, err)

	// A padded ID must not open a second progression next to "u1".
	for _, id := range []string{" u1", "u1 ", "\tu1"} {
		_, err = f.eng.AwardXP(ctx, id, 10, "login")
		require.ErrorIs(t, err, shared.ErrPaddedUserID)
		_, err = f.eng.UpdateMissionProgress(ctx, id, "login", 1)
		require.ErrorIs(t, err, shared.ErrPaddedUserID)
	}

	page, err := f.eng.GetXPHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)

	_, err = f.store.Get(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrProgressionNotFound)
}

func TestAwardXP_BonusDoesNotFeedEarnXP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.AwardXP(ctx, "u1", 600, "material_completed")
	require.NoError(t, err)
	assert.True(t, res.EarnXP.OK())
	require.Len(t, res.Missions, 1)
	assert.Equal(t, 600, res.Missions[0].Progress)

	res, err = f.eng.AwardXP(ctx, "u1", 600, "material_completed")
	require.NoError(t, err)
	require.Len(t, res.Missions, 1)
	assert.True(t, res.Missions[0].Completed)
	assert.Equal(t, 1000, res.Missions[0].Progress, "progress is clamped")
	assert.Equal(t, 20, res.Missions[0].BonusXP)

	history, err := f.eng.GetXPHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, history.Entries, 3)
	assert.Equal(t, "mission_completed", history.Entries[0].Reason)
	assert.True(t, history.Entries[0].Bonus)

	stats, err := f.eng.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1220, stats.TotalXP)
	assert.Equal(t, 1220, f.historySum(t, "u1"))
	assert.Equal(t, 1, stats.CompletedMissions)
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestPerfectQuiz_CompletesWithBonusAndBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		res, err := f.eng.UpdateMissionProgress(ctx, "u1", "perfect_quiz", 1)
		require.NoError(t, err)
		require.Len(t, res.Missions, 1)
		assert.False(t, res.Missions[0].Completed)
		assert.Equal(t, i, res.Missions[0].Progress)
	}

	res, err := f.eng.UpdateMissionProgress(ctx, "u1", "perfect_quiz", 1)
	require.NoError(t, err)
	out := res.Missions[0]
	assert.True(t, out.Completed)
	assert.Equal(t, 50, out.BonusXP)
	assert.Equal(t, "quiz-master", out.BadgeAwarded)

	res, err = f.eng.UpdateMissionProgress(ctx, "u1", "perfect_quiz", 1)
	require.NoError(t, err)
	assert.True(t, res.Missions[0].Skipped)
	assert.Equal(t, 5, res.Missions[0].Progress)

	stats, err := f.eng.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, stats.TotalXP)
	assert.Equal(t, 1, stats.BadgeCount)

	badges, err := f.eng.GetAllBadges(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, badges, 2)
	assert.Equal(t, "quiz-master", badges[0].ID)
	assert.True(t, badges[0].Earned)
	assert.Equal(t, badge.SourceMission, badges[0].Source)
	assert.False(t, badges[1].Earned)

	f.bus.Wait()
	assert.Len(t, f.sink.ofType(notification.TypeMissionCompleted), 1)
	assert.Len(t, f.sink.ofType(notification.TypeBadgeEarned), 1)
}

func TestUpdateMissionProgress_UnknownRequirementIgnored(t *testing.T) {
	f := newFixture(t)

	res, err := f.eng.UpdateMissionProgress(context.Background(), "u1", "juggling", 3)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Empty(t, res.Missions)

	_, err = f.eng.UpdateMissionProgress(context.Background(), "u1", "login", 0)
	assert.True(t, shared.IsValidation(err))
}

func TestDailyReset_ExactlyOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.UpdateMissionProgress(ctx, "u1", "login", 1)
	require.NoError(t, err)
	require.True(t, res.Missions[0].Completed)

	f.clock.Advance(24*time.Hour + time.Second)

	var (
		mu      sync.Mutex
		results []command.MissionOutcome
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			r, err := f.eng.UpdateMissionProgress(gctx, "u1", "login", 1)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, r.Missions...)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, results, 10)

	resets, completions := 0, 0
	for _, r := range results {
		if r.Reset {
			resets++
		}
		if r.Completed {
			completions++
		}
	}
	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, completions)

	stats, err := f.eng.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, stats.TotalXP)
	assert.Equal(t, 20, f.historySum(t, "u1"))
}

func TestGetUserMissions_ResetDueHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.UpdateMissionProgress(ctx, "u1", "login", 1)
	require.NoError(t, err)

	list, err := f.eng.GetUserMissions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "daily-login", list[0].ID)
	assert.True(t, list[0].IsCompleted)
	assert.False(t, list[0].ResetDue)
	require.NotNil(t, list[0].ResetAt)
	assert.True(t, t0.Add(24*time.Hour).Equal(*list[0].ResetAt))
	assert.False(t, list[1].Started)
	assert.Nil(t, list[1].ResetAt)

	f.clock.Advance(25 * time.Hour)
	list, err = f.eng.GetUserMissions(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, list[0].ResetDue)
	assert.True(t, list[0].IsCompleted, "reads never reset")
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

func TestAwardBadge_IdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var earned atomic.Int32
	require.NoError(t, f.bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		earned.Add(1)
		return nil
	}))

	var inserted atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			res, err := f.eng.AwardBadge(gctx, "u1", "quiz-master")
			if err != nil {
				return err
			}
			if res.Inserted {
				inserted.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	res, err := f.eng.AwardBadge(ctx, "u1", "quiz-master")
	require.NoError(t, err)
	assert.False(t, res.Inserted)

	f.bus.Wait()
	assert.Equal(t, int32(1), inserted.Load())
	assert.Equal(t, int32(1), earned.Load())
	assert.Len(t, f.sink.ofType(notification.TypeBadgeEarned), 1)

	n, err := f.store.CountGrants(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAwardBadge_UnknownBadge(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.AwardBadge(context.Background(), "u1", "nope")
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestCheckAndAwardBadges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.CheckAndAwardBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, res.Awarded)

	_, err = f.eng.AwardXP(ctx, "u1", 300, "course_completed")
	require.NoError(t, err)

	res, err = f.eng.CheckAndAwardBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"xp-300"}, res.Awarded)
	assert.Equal(t, 1, res.Evaluated)

	res, err = f.eng.CheckAndAwardBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, res.Awarded)
}

func TestAutoCheckBadges(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AutoCheckBadges = true })
	ctx := context.Background()

	_, err := f.eng.AwardXP(ctx, "u1", 300, "course_completed")
	require.NoError(t, err)

	// The rule check runs asynchronously and publishes its own event.
	assert.Eventually(t, func() bool {
		n, err := f.store.CountGrants(ctx, "u1")
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCheckAndAwardBadges_CountsCompletionsAcrossResets(t *testing.T) {
	cat, err := config.LoadCatalog("")
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) { o.Catalog = cat })
	ctx := context.Background()

	for day := 0; day < 10; day++ {
		res, err := f.eng.UpdateMissionProgress(ctx, "u1", "login", 1)
		require.NoError(t, err)
		require.Equal(t, 1, res.CompletedCount(), "day %d", day)
		f.clock.Advance(24*time.Hour + time.Second)
	}

	// Only the current daily state counts as completed; the lifetime total is ten.
	stats, err := f.eng.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CompletedMissions)

	res, err := f.eng.CheckAndAwardBadges(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, res.Awarded, "mission-hunter")
}

func TestCheckAndAwardBadges_EveryDefaultRuleIsReachable(t *testing.T) {
	cat, err := config.LoadCatalog("")
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) { o.Catalog = cat })
	ctx := context.Background()

	award := func(reason string, amount, times int) {
		for i := 0; i < times; i++ {
			_, err := f.eng.AwardXP(ctx, "u1", amount, reason)
			require.NoError(t, err)
		}
	}
	award("material_completed", 20, 1)
	award("course_completed", 900, 1)
	award("forum_post", 5, 10)
	award("like_received", 2, 25)
	for day := 0; day < 10; day++ {
		_, err := f.eng.UpdateMissionProgress(ctx, "u1", "login", 1)
		require.NoError(t, err)
		f.clock.Advance(24*time.Hour + time.Second)
	}

	res, err := f.eng.CheckAndAwardBadges(ctx, "u1")
	require.NoError(t, err)

	var want []string
	for _, r := range cat.Rules().Rules() {
		want = append(want, r.BadgeID)
	}
	assert.ElementsMatch(t, want, res.Awarded)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD & STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestLeaderboard_CompetitionRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	award := func(user string, xp int) {
		_, err := f.eng.AwardXP(ctx, user, xp, "course_completed")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	award("alice", 500)
	award("carol", 300)
	award("bob", 300)
	award("admin", 1000)
	_, err := f.eng.UpsertMember(ctx, "admin", "admin", false)
	require.NoError(t, err)

	page1, err := f.eng.GetLeaderboard(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1.Rows, 2)
	assert.Equal(t, "alice", page1.Rows[0].UserID)
	assert.Equal(t, 1, page1.Rows[0].Rank)
	assert.Equal(t, "carol", page1.Rows[1].UserID, "earlier progression first among ties")
	assert.Equal(t, 2, page1.Rows[1].Rank)
	assert.Equal(t, 3, page1.Pagination.Total)
	assert.True(t, page1.Pagination.HasNext)
	assert.Equal(t, "Explorer", page1.Rows[0].LevelName)

	page2, err := f.eng.GetLeaderboard(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2.Rows, 1)
	assert.Equal(t, "bob", page2.Rows[0].UserID)
	assert.Equal(t, 2, page2.Rows[0].Rank)

	stats, err := f.eng.GetUserStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rank)
	assert.True(t, stats.Eligible)

	stats, err = f.eng.GetUserStats(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rank)
	assert.False(t, stats.Eligible)

	_, err = f.eng.GetLeaderboard(ctx, -1, 10)
	assert.True(t, shared.IsValidation(err))
}

func TestGetUserStats_UnknownUser(t *testing.T) {
	f := newFixture(t)

	stats, err := f.eng.GetUserStats(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalXP)
	assert.Equal(t, 1, stats.Level)
	assert.Equal(t, "Newcomer", stats.LevelName)
	assert.Equal(t, 2, stats.NextLevel)
	assert.Equal(t, 100, stats.XPToNextLevel)
	assert.Equal(t, 1, stats.Rank)
	assert.Zero(t, stats.ProgressPercent)
	assert.Nil(t, stats.Since)
}

func TestGetUserStats_ProgressAndWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.AwardXP(ctx, "u1", 40, "forum_post")
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)
	_, err = f.eng.AwardXP(ctx, "u1", 200, "forum_post")
	require.NoError(t, err)

	stats, err := f.eng.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	// (240-100)/(300-100) = 70%.
	assert.Equal(t, 240, stats.TotalXP)
	assert.Equal(t, 2, stats.Level)
	assert.InDelta(t, 70.0, stats.ProgressPercent, 0.001)
	assert.Equal(t, 60, stats.XPToNextLevel)
	assert.Equal(t, 200, stats.XPToday)
	assert.Equal(t, 240, stats.XPThisWeek)
}

func TestGetXPHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, r := range []string{"login", "forum_post", "like_received"} {
		_, err := f.eng.AwardXP(ctx, "u1", 5, r)
		require.NoError(t, err)
	}

	page, err := f.eng.GetXPHistory(ctx, "u1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "like_received", page.Entries[0].Reason)
	assert.Equal(t, "forum_post", page.Entries[1].Reason)
	assert.Equal(t, 3, page.Pagination.Total)

	page, err = f.eng.GetXPHistory(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "login", page.Entries[0].Reason)
}
