package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// GetXPHistoryQuery запрашивает страницу леджера пользователя.
type GetXPHistoryQuery struct {
	UserID string
	Page   int
	Limit  int
}

// XPHistoryEntryDTO — запись леджера.
type XPHistoryEntryDTO struct {
	ID        int64     `json:"id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	Bonus     bool      `json:"bonus"`
	CreatedAt time.Time `json:"created_at"`
}

// XPHistoryPage — страница истории, новые записи первыми.
type XPHistoryPage struct {
	UserID     string                 `json:"user_id"`
	Entries    []XPHistoryEntryDTO    `json:"entries"`
	Pagination leaderboard.Pagination `json:"pagination"`
}

// GetXPHistoryHandler обрабатывает запрос истории.
type GetXPHistoryHandler struct {
	progressions progression.ReadRepository
	defaultLimit int
	maxLimit     int
}

// NewGetXPHistoryHandler создаёт обработчик.
func NewGetXPHistoryHandler(progressions progression.ReadRepository, defaultLimit, maxLimit int) *GetXPHistoryHandler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &GetXPHistoryHandler{progressions: progressions, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Handle выполняет запрос.
func (h *GetXPHistoryHandler) Handle(ctx context.Context, q GetXPHistoryQuery) (*XPHistoryPage, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("get_xp_history: %w", err)
	}
	req, err := leaderboard.PageRequest{Page: q.Page, Limit: q.Limit}.Normalize(h.defaultLimit, h.maxLimit)
	if err != nil {
		return nil, fmt.Errorf("get_xp_history: %w", err)
	}

	entries, total, err := h.progressions.ListHistory(ctx, q.UserID, req.Offset(), req.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_xp_history: %w", err)
	}

	out := &XPHistoryPage{
		UserID:     q.UserID,
		Entries:    make([]XPHistoryEntryDTO, 0, len(entries)),
		Pagination: leaderboard.NewPagination(req, total),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, XPHistoryEntryDTO{
			ID:        e.ID,
			Amount:    e.Amount,
			Reason:    e.Reason.String(),
			Bonus:     e.Reason.IsBonus(),
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}
