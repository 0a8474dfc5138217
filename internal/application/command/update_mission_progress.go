package command

import (
	"context"
	"errors"
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
// UPDATE MISSION PROGRESS COMMAND
// Advances every active mission whose requirement type matches. Each mission
// runs in its own transaction: reset, increment, completion, bonus XP and the
// mission badge commit atomically per mission.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateMissionProgressCommand reports amount units of a platform action.
type UpdateMissionProgressCommand struct {
	UserID          string
	RequirementType string
	Amount          int
}

// Validate validates the command.
func (c UpdateMissionProgressCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if mission.NormalizeRequirementType(c.RequirementType) == "" {
		return shared.ErrEmptyRequirementType
	}
	if c.Amount <= 0 {
		return shared.ErrNonPositiveProgress
	}
	return nil
}

// UpdateMissionProgressResult contains per-mission outcomes.
type UpdateMissionProgressResult struct {
	// Ignored is true when no active mission uses the requirement type.
	Ignored  bool
	Missions []MissionOutcome
}

// CompletedCount returns how many missions were completed by this update.
func (r *UpdateMissionProgressResult) CompletedCount() int {
	n := 0
	for _, m := range r.Missions {
		if m.Completed {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateMissionProgressHandler handles UpdateMissionProgressCommand.
type UpdateMissionProgressHandler struct {
	runner  *TxRunner
	catalog *catalog.Catalog
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewUpdateMissionProgressHandler creates a new UpdateMissionProgressHandler.
func NewUpdateMissionProgressHandler(runner *TxRunner, cat *catalog.Catalog, clock clockwork.Clock, log *slog.Logger) *UpdateMissionProgressHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UpdateMissionProgressHandler{
		runner:  runner,
		catalog: cat,
		clock:   clock,
		logger:  log.With(logger.Component("mission_progress")),
	}
}

// Handle executes the command. Missions already processed keep their
// committed progress when a later mission fails; the error lists every failure.
func (h *UpdateMissionProgressHandler) Handle(ctx context.Context, cmd UpdateMissionProgressCommand) (*UpdateMissionProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_mission_progress: %w", err)
	}

	defs := h.catalog.MissionsFor(cmd.RequirementType)
	if len(defs) == 0 {
		h.logger.Debug("no missions for requirement",
			logger.UserID(cmd.UserID), "requirement_type", cmd.RequirementType)
		return &UpdateMissionProgressResult{Ignored: true}, nil
	}

	result := &UpdateMissionProgressResult{Missions: make([]MissionOutcome, 0, len(defs))}
	var errs []error

	for _, def := range defs {
		var outcome MissionOutcome
		err := h.runner.Run(ctx, "update_mission_progress", func(ctx context.Context, tx progression.UnitOfWork) ([]shared.Event, error) {
			out, events, err := advanceInTx(ctx, tx, h.catalog, def, cmd.UserID, cmd.Amount, h.clock.Now())
			if err != nil {
				return nil, err
			}
			outcome = out
			return events, nil
		})
		if err != nil {
			h.logger.Error("mission progress failed",
				logger.UserID(cmd.UserID), logger.MissionID(def.ID), logger.Err(err))
			errs = append(errs, fmt.Errorf("mission %s: %w", def.ID, err))
			continue
		}

		result.Missions = append(result.Missions, outcome)
		if outcome.Completed {
			h.logger.Info("mission completed",
				logger.UserID(cmd.UserID),
				logger.MissionID(def.ID),
				logger.XPAmount(outcome.BonusXP),
				logger.BadgeID(outcome.BadgeAwarded),
			)
		}
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}
