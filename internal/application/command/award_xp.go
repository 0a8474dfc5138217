package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// Primary XP award for a platform action. The ledger entry, the new total and
// the level change commit together; earn_xp missions advance afterwards.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains the data of one primary award.
type AwardXPCommand struct {
	UserID string
	Amount int
	Reason string
}

// Validate validates the command and returns the normalized reason.
func (c AwardXPCommand) Validate() (progression.Reason, error) {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return "", err
	}
	if c.Amount <= 0 {
		return "", shared.ErrNonPositiveXP
	}
	reason, err := progression.NormalizeReason(c.Reason)
	if err != nil {
		return "", err
	}
	if reason.IsBonus() {
		return "", shared.WrapError("progression", "Award", shared.ErrInvalidInput,
			"reason is reserved for mission bonuses", fmt.Errorf("reason %q", reason))
	}
	return reason, nil
}

// AwardXPResult contains the result of an award.
type AwardXPResult struct {
	Entry         progression.XPHistoryEntry
	TotalXP       int
	PreviousLevel int
	Level         int
	LevelName     string
	LeveledUp     bool

	// EarnXP is the outcome of the earn_xp follow-up. A failure here never
	// undoes the committed award.
	EarnXP shared.Result

	// Missions lists the earn_xp missions touched by the follow-up.
	Missions []MissionOutcome
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPHandler handles AwardXPCommand.
type AwardXPHandler struct {
	runner   *TxRunner
	catalog  *catalog.Catalog
	missions *UpdateMissionProgressHandler
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewAwardXPHandler creates a new AwardXPHandler. missions may be nil, in
// which case awards do not advance earn_xp missions.
func NewAwardXPHandler(
	runner *TxRunner,
	cat *catalog.Catalog,
	missions *UpdateMissionProgressHandler,
	clock clockwork.Clock,
	log *slog.Logger,
) *AwardXPHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AwardXPHandler{
		runner:   runner,
		catalog:  cat,
		missions: missions,
		clock:    clock,
		logger:   log.With(logger.Component("award_xp")),
	}
}

// Handle executes the award.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	reason, err := cmd.Validate()
	if err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}

	var done awarded
	err = h.runner.Run(ctx, "award_xp", func(ctx context.Context, tx progression.UnitOfWork) ([]shared.Event, error) {
		res, events, err := awardInTx(ctx, tx, h.catalog.Levels(), cmd.UserID, cmd.Amount, reason, h.clock.Now())
		if err != nil {
			return nil, err
		}
		done = res
		return events, nil
	})
	if err != nil {
		h.logger.Error("award failed",
			logger.UserID(cmd.UserID), logger.XPAmount(cmd.Amount), logger.Reason(reason.String()), logger.Err(err))
		return nil, err
	}

	result := &AwardXPResult{
		Entry:         done.Entry,
		TotalXP:       done.Outcome.NewXP.Int(),
		PreviousLevel: done.Outcome.PreviousLevel,
		Level:         done.Outcome.NewLevel.Number,
		LevelName:     done.Outcome.NewLevel.Name,
		LeveledUp:     done.Outcome.LeveledUp,
		EarnXP:        shared.Ok("earn_xp"),
	}

	h.logger.Debug("xp awarded",
		logger.UserID(cmd.UserID),
		logger.XPAmount(cmd.Amount),
		logger.Reason(reason.String()),
		logger.Level(result.Level),
	)

	if h.missions != nil {
		progress, err := h.missions.Handle(ctx, UpdateMissionProgressCommand{
			UserID:          cmd.UserID,
			RequirementType: mission.RequirementEarnXP,
			Amount:          cmd.Amount,
		})
		if err != nil {
			result.EarnXP = shared.Failed("earn_xp", err)
			h.logger.Warn("earn_xp follow-up failed", logger.UserID(cmd.UserID), logger.Err(err))
		} else {
			result.Missions = progress.Missions
		}
	}

	return result, nil
}
