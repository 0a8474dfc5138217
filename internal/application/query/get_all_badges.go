package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// GetAllBadgesQuery запрашивает все бейджи с отметкой о получении.
type GetAllBadgesQuery struct {
	UserID string
}

// BadgeStatusDTO — бейдж каталога и его статус у пользователя.
type BadgeStatusDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Criteria    string     `json:"criteria,omitempty"`
	IconURL     string     `json:"icon_url,omitempty"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
	Source      string     `json:"source,omitempty"`
}

// GetAllBadgesHandler обрабатывает запрос.
type GetAllBadgesHandler struct {
	catalog *catalog.Catalog
	badges  badge.ReadRepository
}

// NewGetAllBadgesHandler создаёт обработчик.
func NewGetAllBadgesHandler(cat *catalog.Catalog, badges badge.ReadRepository) *GetAllBadgesHandler {
	return &GetAllBadgesHandler{catalog: cat, badges: badges}
}

// Handle возвращает каждый бейдж каталога в порядке ID.
func (h *GetAllBadgesHandler) Handle(ctx context.Context, q GetAllBadgesQuery) ([]BadgeStatusDTO, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("get_all_badges: %w", err)
	}

	grants, err := h.badges.ListGrants(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_all_badges: %w", err)
	}
	byID := make(map[string]badge.Grant, len(grants))
	for _, g := range grants {
		byID[g.BadgeID] = g
	}

	defs := h.catalog.Badges()
	out := make([]BadgeStatusDTO, 0, len(defs))
	for _, d := range defs {
		dto := BadgeStatusDTO{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Criteria:    d.Criteria,
			IconURL:     d.IconURL,
		}
		if g, ok := byID[d.ID]; ok {
			earnedAt := g.EarnedAt
			dto.Earned = true
			dto.EarnedAt = &earnedAt
			dto.Source = g.Source
		}
		out = append(out, dto)
	}
	return out, nil
}
