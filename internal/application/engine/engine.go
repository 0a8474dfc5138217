// Package engine assembles the progression use cases behind one facade.
// Inbound adapters (HTTP, CLI, scheduler) depend on Engine only.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/application/command"
	"github.com/alem-hub/alem-progression/internal/application/eventhandler"
	"github.com/alem-hub/alem-progression/internal/application/query"
	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// Store is everything the engine needs from persistence.
type Store interface {
	progression.UnitOfWorkFactory
	progression.ReadRepository
	mission.ReadRepository
	badge.ReadRepository
	leaderboard.Repository
}

// Options configures an Engine. Catalog and Store are required.
type Options struct {
	Catalog *catalog.Catalog
	Store   Store

	// Cache enables cache-aside leaderboard reads. Optional.
	Cache    leaderboard.Cache
	CacheTTL time.Duration

	// Bus receives committed events. Optional; without it no async
	// reaction (notifications, cache invalidation, badge re-check) runs.
	Bus shared.EventBus

	// Sink and Gate configure progress notifications.
	Sink notification.Sink
	Gate eventhandler.FeatureGate

	// AutoCheckBadges re-evaluates badge rules after XP and mission events.
	AutoCheckBadges bool

	Clock    clockwork.Clock
	Location *time.Location
	Logger   *slog.Logger

	TxMaxAttempts  int
	TxInitialDelay time.Duration
	TxMaxDelay     time.Duration

	DefaultPageSize int
	MaxPageSize     int

	NotificationTimeout time.Duration
}

// Engine is the progression facade.
type Engine struct {
	catalog *catalog.Catalog

	awardXP     *command.AwardXPHandler
	missions    *command.UpdateMissionProgressHandler
	awardBadge  *command.AwardBadgeHandler
	checkBadges *command.CheckBadgesHandler
	members     *command.UpsertMemberHandler

	stats       *query.GetUserStatsHandler
	board       *query.GetLeaderboardHandler
	history     *query.GetXPHistoryHandler
	badges      *query.GetAllBadgesHandler
	userMission *query.GetUserMissionsHandler
	audit       *query.AuditLedgerHandler
	activity    *query.ActivityStatsReader
}

// New wires the handlers and subscribes the async reactions to opts.Bus.
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil || opts.Store == nil {
		return nil, errors.New("engine: catalog and store are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TxMaxAttempts <= 0 {
		opts.TxMaxAttempts = 5
	}
	if opts.TxInitialDelay <= 0 {
		opts.TxInitialDelay = 10 * time.Millisecond
	}
	if opts.TxMaxDelay <= 0 {
		opts.TxMaxDelay = 200 * time.Millisecond
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}

	log := opts.Logger
	cat := opts.Catalog
	st := opts.Store

	var publisher shared.EventPublisher
	if opts.Bus != nil {
		publisher = opts.Bus
	}

	retrier := command.NewConflictRetrier(opts.TxMaxAttempts, opts.TxInitialDelay, opts.TxMaxDelay, opts.Clock)
	runner := command.NewTxRunner(st, retrier, publisher, log)

	e := &Engine{catalog: cat}
	e.activity = query.NewActivityStatsReader(st, st, st)
	e.missions = command.NewUpdateMissionProgressHandler(runner, cat, opts.Clock, log)
	e.awardXP = command.NewAwardXPHandler(runner, cat, e.missions, opts.Clock, log)
	e.awardBadge = command.NewAwardBadgeHandler(runner, cat, opts.Clock, log)
	e.checkBadges = command.NewCheckBadgesHandler(runner, cat, e.activity, opts.Clock, log)
	e.members = command.NewUpsertMemberHandler(st, publisher, opts.Clock, log)

	e.stats = query.NewGetUserStatsHandler(cat, st, st, st, st, opts.Clock, opts.Location)
	e.board = query.NewGetLeaderboardHandler(cat, st, opts.Cache, query.LeaderboardOptions{
		DefaultLimit: opts.DefaultPageSize,
		MaxLimit:     opts.MaxPageSize,
		CacheTTL:     opts.CacheTTL,
	}, opts.Clock, log)
	e.history = query.NewGetXPHistoryHandler(st, opts.DefaultPageSize, opts.MaxPageSize)
	e.badges = query.NewGetAllBadgesHandler(cat, st)
	e.userMission = query.NewGetUserMissionsHandler(cat, st, opts.Clock)
	e.audit = query.NewAuditLedgerHandler(st, opts.Clock)

	if opts.Bus != nil {
		notify := eventhandler.NewNotificationHandler(opts.Sink, opts.Gate,
			eventhandler.NotificationConfig{Timeout: opts.NotificationTimeout}, log)
		if err := notify.Subscribe(opts.Bus); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if opts.Cache != nil {
			if err := eventhandler.NewLeaderboardCacheHandler(opts.Cache, log).Subscribe(opts.Bus); err != nil {
				return nil, fmt.Errorf("engine: %w", err)
			}
		}
		if opts.AutoCheckBadges {
			if err := eventhandler.NewBadgeCheckHandler(e.checkBadges, log).Subscribe(opts.Bus); err != nil {
				return nil, fmt.Errorf("engine: %w", err)
			}
		}
	}

	return e, nil
}

// Catalog returns the loaded catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// AwardXP grants a primary XP award.
func (e *Engine) AwardXP(ctx context.Context, userID string, amount int, reason string) (*command.AwardXPResult, error) {
	return e.awardXP.Handle(ctx, command.AwardXPCommand{UserID: userID, Amount: amount, Reason: reason})
}

// UpdateMissionProgress advances missions of requirementType by amount.
func (e *Engine) UpdateMissionProgress(ctx context.Context, userID, requirementType string, amount int) (*command.UpdateMissionProgressResult, error) {
	return e.missions.Handle(ctx, command.UpdateMissionProgressCommand{
		UserID:          userID,
		RequirementType: requirementType,
		Amount:          amount,
	})
}

// AwardBadge grants a badge at most once.
func (e *Engine) AwardBadge(ctx context.Context, userID, badgeID string) (*command.AwardBadgeResult, error) {
	return e.awardBadge.Handle(ctx, command.AwardBadgeCommand{UserID: userID, BadgeID: badgeID})
}

// CheckAndAwardBadges evaluates the badge rules for userID.
func (e *Engine) CheckAndAwardBadges(ctx context.Context, userID string) (*command.CheckBadgesResult, error) {
	return e.checkBadges.Handle(ctx, command.CheckBadgesCommand{UserID: userID})
}

// UpsertMember records leaderboard eligibility.
func (e *Engine) UpsertMember(ctx context.Context, userID, role string, suspended bool) (*leaderboard.Member, error) {
	return e.members.Handle(ctx, command.UpsertMemberCommand{UserID: userID, Role: role, Suspended: suspended})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStats returns the progression summary.
func (e *Engine) GetUserStats(ctx context.Context, userID string) (*query.UserStatsDTO, error) {
	return e.stats.Handle(ctx, query.GetUserStatsQuery{UserID: userID})
}

// GetLeaderboard returns a ranked page.
func (e *Engine) GetLeaderboard(ctx context.Context, page, limit int) (*leaderboard.Page, error) {
	return e.board.Handle(ctx, query.GetLeaderboardQuery{Page: page, Limit: limit})
}

// WarmLeaderboard loads the first pages into the cache.
func (e *Engine) WarmLeaderboard(ctx context.Context, pages int) (int, error) {
	return e.board.Warm(ctx, pages)
}

// LeaderboardSnapshot reads the top n rows bypassing the cache.
func (e *Engine) LeaderboardSnapshot(ctx context.Context, n int) (*leaderboard.Page, error) {
	return e.board.Load(ctx, leaderboard.PageRequest{Page: 1, Limit: n})
}

// GetAllBadges returns every badge with its earned flag.
func (e *Engine) GetAllBadges(ctx context.Context, userID string) ([]query.BadgeStatusDTO, error) {
	return e.badges.Handle(ctx, query.GetAllBadgesQuery{UserID: userID})
}

// GetUserMissions returns every active mission with the user's state.
func (e *Engine) GetUserMissions(ctx context.Context, userID string) ([]query.MissionStatusDTO, error) {
	return e.userMission.Handle(ctx, query.GetUserMissionsQuery{UserID: userID})
}

// GetXPHistory returns a newest-first page of the user's ledger.
func (e *Engine) GetXPHistory(ctx context.Context, userID string, page, limit int) (*query.XPHistoryPage, error) {
	return e.history.Handle(ctx, query.GetXPHistoryQuery{UserID: userID, Page: page, Limit: limit})
}

// AuditLedger compares ledger sums with totals.
func (e *Engine) AuditLedger(ctx context.Context) (*query.AuditLedgerResult, error) {
	return e.audit.Handle(ctx)
}
