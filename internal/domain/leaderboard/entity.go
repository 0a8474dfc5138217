// Package leaderboard содержит доменную модель лидерборда: строки рейтинга,
// участников (право попадать в рейтинг) и пагинацию.
package leaderboard

import (
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER (eligibility)
// ══════════════════════════════════════════════════════════════════════════════

// Role — роль пользователя на платформе.
type Role string

const (
	RoleLearner    Role = "learner"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// IsValid проверяет роль.
func (r Role) IsValid() bool {
	switch r {
	case RoleLearner, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole разбирает роль из строки.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.IsValid() {
		return "", shared.ErrInvalidRole
	}
	return r, nil
}

// Member — проекция пользователя платформы, определяющая участие в рейтинге.
// Пользователь без записи Member считается учащимся без блокировки.
type Member struct {
	UserID    string
	Role      Role
	Suspended bool
	UpdatedAt time.Time
}

// Eligible сообщает, попадает ли пользователь в рейтинг:
// только учащиеся без блокировки.
func (m Member) Eligible() bool {
	return m.Role == RoleLearner && !m.Suspended
}

// ══════════════════════════════════════════════════════════════════════════════
// ROWS & RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Row — строка лидерборда (вычисляемая, не хранится).
type Row struct {
	Rank      int       `json:"rank"`
	UserID    string    `json:"user_id"`
	TotalXP   int       `json:"total_xp"`
	Level     int       `json:"level"`
	LevelName string    `json:"level_name,omitempty"`
	Since     time.Time `json:"since"`
}

// Standing — исходные данные для ранжирования.
type Standing struct {
	UserID    string
	TotalXP   int
	Level     int
	CreatedAt time.Time
}

// Less задаёт полный порядок рейтинга: XP по убыванию, затем более ранняя
// запись прогресса, затем user_id по возрастанию.
func Less(a, b Standing) bool {
	if a.TotalXP != b.TotalXP {
		return a.TotalXP > b.TotalXP
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}

// Rank упорядочивает участников и присваивает ранг соревнований:
// rank = 1 + число участников со строго большим XP (500, 300, 300 → 1, 2, 2).
func Rank(standings []Standing) []Row {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })

	rows := make([]Row, len(sorted))
	for i, s := range sorted {
		rank := i + 1
		if i > 0 && s.TotalXP == sorted[i-1].TotalXP {
			rank = rows[i-1].Rank
		}
		rows[i] = Row{
			Rank:    rank,
			UserID:  s.UserID,
			TotalXP: s.TotalXP,
			Level:   s.Level,
			Since:   s.CreatedAt,
		}
	}
	return rows
}

// ══════════════════════════════════════════════════════════════════════════════
// PAGINATION
// ══════════════════════════════════════════════════════════════════════════════

// PageRequest — параметры страницы (Page начинается с 1).
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize подставляет значения по умолчанию и ограничивает размер страницы.
// Отрицательные значения — ошибка валидации.
func (r PageRequest) Normalize(defaultLimit, maxLimit int) (PageRequest, error) {
	if r.Page < 0 {
		return r, shared.ErrInvalidPage
	}
	if r.Limit < 0 {
		return r, shared.ErrInvalidLimit
	}
	if r.Page == 0 {
		r.Page = 1
	}
	if r.Limit == 0 {
		r.Limit = defaultLimit
	}
	if maxLimit > 0 && r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	return r, nil
}

// Offset возвращает смещение первой строки страницы.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Pagination — метаданные страницы.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPagination вычисляет метаданные для страницы и общего числа строк.
func NewPagination(req PageRequest, total int) Pagination {
	totalPages := 0
	if req.Limit > 0 {
		totalPages = (total + req.Limit - 1) / req.Limit
	}
	return Pagination{
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    req.Page < totalPages,
		HasPrev:    req.Page > 1,
	}
}

// Page — страница лидерборда.
type Page struct {
	Rows        []Row      `json:"rows"`
	Pagination  Pagination `json:"pagination"`
	GeneratedAt time.Time  `json:"generated_at"`
}
