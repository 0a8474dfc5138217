package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/application/command"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

var at = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

type sinkStub struct {
	mu   sync.Mutex
	sent []*notification.Notification
	err  error
}

func (s *sinkStub) Notify(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

type gateStub map[string]bool

func (g gateStub) IsEnabledFor(name, _ string) bool { return g[name] }

func TestNotificationHandler_BuildsNotifications(t *testing.T) {
	sink := &sinkStub{}
	h := NewNotificationHandler(sink, nil, DefaultNotificationConfig(), logger.Discard())

	require.NoError(t, h.Handle(shared.NewLevelUpEvent("u1", 1, 2, "Learner", 120, at)))
	require.NoError(t, h.Handle(shared.NewMissionCompletedEvent("u1", "m1", "Daily Login", "daily", 10, "", at)))
	require.NoError(t, h.Handle(shared.NewBadgeEarnedEvent("u1", "b1", "Quiz Master", "mission", at)))
	require.NoError(t, h.Handle(shared.NewXPAwardedEvent("u1", 1, 10, "login", 10, false, at)))

	require.Len(t, sink.sent, 3)
	assert.Equal(t, notification.TypeLevelUp, sink.sent[0].Type)
	assert.Equal(t, "u1", sink.sent[0].UserID)
	assert.NotEmpty(t, sink.sent[0].ID)
	assert.Equal(t, notification.TypeMissionCompleted, sink.sent[1].Type)
	assert.Equal(t, "m1", sink.sent[1].Data["mission_id"])
	assert.Equal(t, notification.TypeBadgeEarned, sink.sent[2].Type)
}

func TestNotificationHandler_RespectsGateAndSwallowsErrors(t *testing.T) {
	sink := &sinkStub{err: errors.New("down")}
	gate := gateStub{FlagNotifyBadgeEarned: true}
	h := NewNotificationHandler(sink, gate, DefaultNotificationConfig(), logger.Discard())

	assert.NoError(t, h.Handle(shared.NewLevelUpEvent("u1", 1, 2, "Learner", 120, at)))
	assert.NoError(t, h.Handle(shared.NewBadgeEarnedEvent("u1", "b1", "Quiz Master", "rule", at)))
	assert.Len(t, sink.sent, 1)
}

type cacheStub struct {
	invalidations int
	err           error
}

func (c *cacheStub) GetPage(context.Context, int, int) (*leaderboard.Page, error) {
	return nil, shared.ErrCacheMiss
}
func (c *cacheStub) SetPage(context.Context, *leaderboard.Page, time.Duration) error { return nil }
func (c *cacheStub) Invalidate(context.Context) error {
	c.invalidations++
	return c.err
}

func TestLeaderboardCacheHandler(t *testing.T) {
	cache := &cacheStub{err: errors.New("redis down")}
	h := NewLeaderboardCacheHandler(cache, logger.Discard())

	assert.NoError(t, h.Handle(shared.NewXPAwardedEvent("u1", 1, 10, "login", 10, false, at)))
	assert.NoError(t, h.Handle(shared.NewMemberUpdatedEvent("u1", "admin", false, at)))
	assert.Equal(t, 2, cache.invalidations)
}

type checkerStub struct {
	users []string
	err   error
}

func (c *checkerStub) Handle(_ context.Context, cmd command.CheckBadgesCommand) (*command.CheckBadgesResult, error) {
	c.users = append(c.users, cmd.UserID)
	if c.err != nil {
		return nil, c.err
	}
	return &command.CheckBadgesResult{Awarded: []string{"xp-1000"}}, nil
}

func TestBadgeCheckHandler(t *testing.T) {
	checker := &checkerStub{}
	h := NewBadgeCheckHandler(checker, logger.Discard())
	assert.NoError(t, h.Handle(shared.NewXPAwardedEvent("u7", 1, 10, "login", 10, false, at)))
	assert.Equal(t, []string{"u7"}, checker.users)

	checker.err = errors.New("stats down")
	assert.NoError(t, h.Handle(shared.NewMissionCompletedEvent("u7", "m", "M", "daily", 1, "", at)))
}
