package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK AND AWARD BADGES COMMAND
// Evaluates the registered rule table against the user's aggregate stats and
// grants every satisfied badge. Grants stay idempotent, so a stale stats
// snapshot can only cause a no-op insert.
// ══════════════════════════════════════════════════════════════════════════════

// CheckBadgesCommand re-evaluates badge rules for UserID.
type CheckBadgesCommand struct {
	UserID string
}

// CheckBadgesResult lists newly granted badges.
type CheckBadgesResult struct {
	Evaluated int
	Awarded   []string
}

// CheckBadgesHandler handles CheckBadgesCommand.
type CheckBadgesHandler struct {
	runner  *TxRunner
	catalog *catalog.Catalog
	stats   badge.StatsProvider
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewCheckBadgesHandler creates a new CheckBadgesHandler.
func NewCheckBadgesHandler(
	runner *TxRunner,
	cat *catalog.Catalog,
	stats badge.StatsProvider,
	clock clockwork.Clock,
	log *slog.Logger,
) *CheckBadgesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CheckBadgesHandler{
		runner:  runner,
		catalog: cat,
		stats:   stats,
		clock:   clock,
		logger:  log.With(logger.Component("check_badges")),
	}
}

// Handle executes the command.
func (h *CheckBadgesHandler) Handle(ctx context.Context, cmd CheckBadgesCommand) (*CheckBadgesResult, error) {
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return nil, fmt.Errorf("check_badges: %w", err)
	}

	stats, err := h.stats.ActivityStats(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("check_badges: %w", shared.WrapError("badge", "Stats",
			shared.ErrServiceUnavailable, "activity stats unavailable", err))
	}

	rules := h.catalog.Rules()
	result := &CheckBadgesResult{Evaluated: rules.Len()}

	due := rules.Evaluate(stats)
	if len(due) == 0 {
		return result, nil
	}

	err = h.runner.Run(ctx, "check_badges", func(ctx context.Context, tx progression.UnitOfWork) ([]shared.Event, error) {
		result.Awarded = result.Awarded[:0]
		now := h.clock.Now()

		var events []shared.Event
		for _, id := range due {
			def, ok := h.catalog.Badge(id)
			if !ok {
				return nil, fmt.Errorf("rule badge %s: %w", id, shared.ErrBadgeNotFound)
			}
			inserted, evs, err := grantInTx(ctx, tx, def, cmd.UserID, badge.SourceRule, now)
			if err != nil {
				return nil, err
			}
			if inserted {
				result.Awarded = append(result.Awarded, id)
			}
			events = append(events, evs...)
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Awarded) > 0 {
		h.logger.Info("badges awarded by rules", logger.UserID(cmd.UserID), "badges", result.Awarded)
	}
	return result, nil
}
