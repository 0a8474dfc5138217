package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// UpsertMemberCommand records a user's role and suspension as reported by
// the platform. Only learners that are not suspended appear on the leaderboard.
type UpsertMemberCommand struct {
	UserID    string
	Role      string
	Suspended bool
}

// UpsertMemberHandler handles UpsertMemberCommand.
type UpsertMemberHandler struct {
	members   leaderboard.Repository
	publisher shared.EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewUpsertMemberHandler creates a new UpsertMemberHandler.
func NewUpsertMemberHandler(members leaderboard.Repository, publisher shared.EventPublisher, clock clockwork.Clock, log *slog.Logger) *UpsertMemberHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UpsertMemberHandler{
		members:   members,
		publisher: publisher,
		clock:     clock,
		logger:    log.With(logger.Component("upsert_member")),
	}
}

// Handle executes the command.
func (h *UpsertMemberHandler) Handle(ctx context.Context, cmd UpsertMemberCommand) (*leaderboard.Member, error) {
	id, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("upsert_member: %w", err)
	}
	role, err := leaderboard.ParseRole(cmd.Role)
	if err != nil {
		return nil, fmt.Errorf("upsert_member: %w", err)
	}

	now := h.clock.Now().UTC()
	m := leaderboard.Member{
		UserID:    id.String(),
		Role:      role,
		Suspended: cmd.Suspended,
		UpdatedAt: now,
	}
	if err := h.members.UpsertMember(ctx, m); err != nil {
		return nil, fmt.Errorf("upsert_member: %w", err)
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(shared.NewMemberUpdatedEvent(m.UserID, string(m.Role), m.Suspended, now)); err != nil {
			h.logger.Warn("publish member update failed", logger.UserID(m.UserID), logger.Err(err))
		}
	}
	return &m, nil
}
