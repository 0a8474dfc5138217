package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// GetUserMissionsQuery запрашивает миссии пользователя.
type GetUserMissionsQuery struct {
	UserID string
}

// MissionStatusDTO — активная миссия и состояние пользователя по ней.
//
// Чтение ничего не сбрасывает: если срок сброса прошёл, ResetDue=true, а
// хранимые значения остаются до следующего обновления прогресса.
type MissionStatusDTO struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	Type             string     `json:"type"`
	RequirementType  string     `json:"requirement_type"`
	RequirementCount int        `json:"requirement_count"`
	XPReward         int        `json:"xp_reward"`
	BadgeReward      string     `json:"badge_reward,omitempty"`
	Progress         int        `json:"progress"`
	IsCompleted      bool       `json:"is_completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ResetAt          *time.Time `json:"reset_at,omitempty"`
	ResetDue         bool       `json:"reset_due"`
	Started          bool       `json:"started"`
}

// GetUserMissionsHandler обрабатывает запрос.
type GetUserMissionsHandler struct {
	catalog  *catalog.Catalog
	missions mission.ReadRepository
	clock    clockwork.Clock
}

// NewGetUserMissionsHandler создаёт обработчик.
func NewGetUserMissionsHandler(cat *catalog.Catalog, missions mission.ReadRepository, clock clockwork.Clock) *GetUserMissionsHandler {
	return &GetUserMissionsHandler{catalog: cat, missions: missions, clock: clock}
}

// Handle возвращает все активные миссии в порядке ID.
func (h *GetUserMissionsHandler) Handle(ctx context.Context, q GetUserMissionsQuery) ([]MissionStatusDTO, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("get_user_missions: %w", err)
	}

	states, err := h.missions.ListStates(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_user_missions: %w", err)
	}
	byID := make(map[string]mission.UserMissionState, len(states))
	for _, s := range states {
		byID[s.MissionID] = s
	}

	now := h.clock.Now()
	defs := h.catalog.ActiveMissions()
	out := make([]MissionStatusDTO, 0, len(defs))
	for _, d := range defs {
		dto := MissionStatusDTO{
			ID:               d.ID,
			Name:             d.Name,
			Description:      d.Description,
			Type:             string(d.Type),
			RequirementType:  d.RequirementType,
			RequirementCount: d.RequirementCount,
			XPReward:         d.XPReward,
			BadgeReward:      d.BadgeReward,
		}
		if s, ok := byID[d.ID]; ok {
			dto.Started = true
			dto.Progress = s.Progress
			dto.IsCompleted = s.IsCompleted
			dto.CompletedAt = s.CompletedAt
			dto.ResetAt = s.ResetAt
			dto.ResetDue = s.ResetDue(now)
		}
		out = append(out, dto)
	}
	return out, nil
}
