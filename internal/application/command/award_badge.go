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
// AWARD BADGE COMMAND
// Idempotent one-time grant. The storage unique constraint decides; a second
// call (sequential or concurrent) inserts nothing and notifies nobody.
// ══════════════════════════════════════════════════════════════════════════════

// AwardBadgeCommand grants BadgeID to UserID.
type AwardBadgeCommand struct {
	UserID  string
	BadgeID string

	// Source is recorded on the grant. Defaults to badge.SourceManual.
	Source string
}

// AwardBadgeResult reports whether a grant row was created.
type AwardBadgeResult struct {
	BadgeID  string
	Inserted bool
}

// AwardBadgeHandler handles AwardBadgeCommand.
type AwardBadgeHandler struct {
	runner  *TxRunner
	catalog *catalog.Catalog
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewAwardBadgeHandler creates a new AwardBadgeHandler.
func NewAwardBadgeHandler(runner *TxRunner, cat *catalog.Catalog, clock clockwork.Clock, log *slog.Logger) *AwardBadgeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AwardBadgeHandler{
		runner:  runner,
		catalog: cat,
		clock:   clock,
		logger:  log.With(logger.Component("award_badge")),
	}
}

// Handle executes the command. Unknown badge IDs are validation errors.
func (h *AwardBadgeHandler) Handle(ctx context.Context, cmd AwardBadgeCommand) (*AwardBadgeResult, error) {
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return nil, fmt.Errorf("award_badge: %w", err)
	}
	def, ok := h.catalog.Badge(cmd.BadgeID)
	if !ok {
		return nil, fmt.Errorf("award_badge: %w", shared.WrapError("badge", "Award", shared.ErrInvalidInput,
			"unknown badge", fmt.Errorf("badge %q", cmd.BadgeID)))
	}
	source := cmd.Source
	if source == "" {
		source = badge.SourceManual
	}

	result := &AwardBadgeResult{BadgeID: def.ID}
	err := h.runner.Run(ctx, "award_badge", func(ctx context.Context, tx progression.UnitOfWork) ([]shared.Event, error) {
		inserted, events, err := grantInTx(ctx, tx, def, cmd.UserID, source, h.clock.Now())
		if err != nil {
			return nil, err
		}
		result.Inserted = inserted
		return events, nil
	})
	if err != nil {
		h.logger.Error("badge award failed", logger.UserID(cmd.UserID), logger.BadgeID(def.ID), logger.Err(err))
		return nil, err
	}

	if result.Inserted {
		h.logger.Info("badge awarded", logger.UserID(cmd.UserID), logger.BadgeID(def.ID), "source", source)
	}
	return result, nil
}
