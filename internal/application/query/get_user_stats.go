package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Сводка прогресса: XP, уровень, процент до следующего уровня, бейджи,
// выполненные миссии и позиция в рейтинге.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStatsQuery содержит параметры запроса.
type GetUserStatsQuery struct {
	UserID string
}

// UserStatsDTO — сводка прогресса пользователя.
type UserStatsDTO struct {
	UserID    string `json:"user_id"`
	TotalXP   int    `json:"total_xp"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name"`

	// NextLevel / NextLevelName пусты на максимальном уровне.
	NextLevel       int     `json:"next_level,omitempty"`
	NextLevelName   string  `json:"next_level_name,omitempty"`
	XPToNextLevel   int     `json:"xp_to_next_level"`
	ProgressPercent float64 `json:"progress_percent"`
	IsMaxLevel      bool    `json:"is_max_level"`

	BadgeCount        int `json:"badge_count"`
	CompletedMissions int `json:"completed_missions"`

	// Rank = 1 + число участников рейтинга со строго большим XP.
	// Считается и для пользователей вне рейтинга.
	Rank     int  `json:"rank"`
	Eligible bool `json:"eligible"`

	XPToday    int `json:"xp_today"`
	XPThisWeek int `json:"xp_this_week"`

	Since *time.Time `json:"since,omitempty"`
}

// GetUserStatsHandler обрабатывает запрос сводки.
type GetUserStatsHandler struct {
	catalog      *catalog.Catalog
	progressions progression.ReadRepository
	missions     mission.ReadRepository
	badges       badge.ReadRepository
	board        leaderboard.Repository
	clock        clockwork.Clock
	loc          *time.Location
}

// NewGetUserStatsHandler создаёт обработчик. loc задаёт границы «сегодня» и «эта неделя».
func NewGetUserStatsHandler(
	cat *catalog.Catalog,
	progressions progression.ReadRepository,
	missions mission.ReadRepository,
	badges badge.ReadRepository,
	board leaderboard.Repository,
	clock clockwork.Clock,
	loc *time.Location,
) *GetUserStatsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &GetUserStatsHandler{
		catalog:      cat,
		progressions: progressions,
		missions:     missions,
		badges:       badges,
		board:        board,
		clock:        clock,
		loc:          loc,
	}
}

// Handle выполняет запрос. Пользователь без прогресса получает нулевую сводку.
func (h *GetUserStatsHandler) Handle(ctx context.Context, q GetUserStatsQuery) (*UserStatsDTO, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("get_user_stats: %w", err)
	}

	levels := h.catalog.Levels()
	xp := progression.XP(0)
	current := 1
	dto := &UserStatsDTO{UserID: q.UserID, Eligible: true}

	p, err := h.progressions.Get(ctx, q.UserID)
	switch {
	case err == nil:
		xp = p.TotalXP
		current = p.CurrentLevel
		since := p.CreatedAt
		dto.Since = &since
	case errors.Is(err, shared.ErrProgressionNotFound):
	default:
		return nil, fmt.Errorf("get_user_stats: %w", err)
	}

	prog := levels.Progress(xp, current)
	dto.TotalXP = xp.Int()
	dto.Level = current
	dto.LevelName = prog.Current.Name
	dto.ProgressPercent = prog.Percent
	dto.XPToNextLevel = prog.XPToNextLevel
	if prog.Next != nil {
		dto.NextLevel = prog.Next.Number
		dto.NextLevelName = prog.Next.Name
	} else {
		dto.IsMaxLevel = true
	}

	if dto.BadgeCount, err = h.badges.CountGrants(ctx, q.UserID); err != nil {
		return nil, fmt.Errorf("get_user_stats: count badges: %w", err)
	}
	if dto.CompletedMissions, err = h.missions.CountCompleted(ctx, q.UserID); err != nil {
		return nil, fmt.Errorf("get_user_stats: count missions: %w", err)
	}

	greater, err := h.board.CountGreater(ctx, dto.TotalXP)
	if err != nil {
		return nil, fmt.Errorf("get_user_stats: rank: %w", err)
	}
	dto.Rank = shared.RankFromGreater(greater).Int()

	member, err := h.board.GetMember(ctx, q.UserID)
	switch {
	case err == nil:
		dto.Eligible = member.Eligible()
	case shared.IsNotFound(err):
	default:
		return nil, fmt.Errorf("get_user_stats: member: %w", err)
	}

	now := h.clock.Now()
	if dto.XPToday, err = h.progressions.SumHistorySince(ctx, q.UserID, timeutil.Today(now, h.loc).From); err != nil {
		return nil, fmt.Errorf("get_user_stats: xp today: %w", err)
	}
	if dto.XPThisWeek, err = h.progressions.SumHistorySince(ctx, q.UserID, timeutil.ThisWeek(now, h.loc).From); err != nil {
		return nil, fmt.Errorf("get_user_stats: xp this week: %w", err)
	}

	return dto, nil
}
