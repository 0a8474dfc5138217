// Package mission содержит доменную модель миссий: определения из каталога
// и состояние прогресса пользователя с ленивым периодическим сбросом.
package mission

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MISSION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type — тип миссии, определяющий цикл сброса.
type Type string

const (
	// TypeDaily — сбрасывается через 24 часа.
	TypeDaily Type = "daily"

	// TypeWeekly — сбрасывается через 7 дней.
	TypeWeekly Type = "weekly"

	// TypeAchievement — выполняется один раз и никогда не сбрасывается.
	TypeAchievement Type = "achievement"
)

// Длительности циклов сброса.
const (
	DailyPeriod  = 24 * time.Hour
	WeeklyPeriod = 7 * 24 * time.Hour
)

// IsValid проверяет тип.
func (t Type) IsValid() bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeAchievement:
		return true
	}
	return false
}

// Period возвращает длительность цикла (0 для достижений).
func (t Type) Period() time.Duration {
	switch t {
	case TypeDaily:
		return DailyPeriod
	case TypeWeekly:
		return WeeklyPeriod
	default:
		return 0
	}
}

// NextReset возвращает время следующего сброса относительно now
// или nil, если тип не сбрасывается.
func (t Type) NextReset(now time.Time) *time.Time {
	period := t.Period()
	if period == 0 {
		return nil
	}
	at := now.UTC().Add(period)
	return &at
}

// ParseType разбирает тип из строки конфигурации.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", shared.WrapError("mission", "ParseType", shared.ErrInvalidInput,
			"invalid mission type", fmt.Errorf("%q", raw))
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENT TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Теги требований, которыми платформа сообщает о действиях пользователя.
const (
	// RequirementEarnXP — прогресс от основных начислений XP (не бонусных).
	RequirementEarnXP = "earn_xp"

	RequirementLogin            = "login"
	RequirementCompleteMaterial = "complete_material"
	RequirementSubmitQuiz       = "submit_quiz"
	RequirementPerfectQuiz      = "perfect_quiz"
	RequirementForumPost        = "forum_post"
)

// NormalizeRequirementType приводит тег требования к каноническому виду.
func NormalizeRequirementType(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSION DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition — миссия из каталога. Только для чтения движком.
type Definition struct {
	// ID — уникальный идентификатор миссии.
	ID string

	// Name — отображаемое название.
	Name string

	// Description — описание цели.
	Description string

	// Type — daily, weekly или achievement.
	Type Type

	// RequirementType — тег действия, который продвигает миссию.
	RequirementType string

	// RequirementCount — сколько единиц нужно набрать (>0).
	RequirementCount int

	// XPReward — бонусный XP за выполнение.
	XPReward int

	// BadgeReward — бейдж за выполнение (пустая строка = нет).
	BadgeReward string

	// Active — неактивные миссии не продвигаются и не показываются.
	Active bool
}

// Validate проверяет определение миссии.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return shared.WrapError("mission", "Validate", shared.ErrInvalidID, "mission id is required", nil)
	}
	if !d.Type.IsValid() {
		return shared.WrapError("mission", "Validate", shared.ErrInvalidInput,
			"invalid mission type", fmt.Errorf("mission %s: %q", d.ID, d.Type))
	}
	if d.RequirementType == "" {
		return shared.WrapError("mission", "Validate", shared.ErrEmptyValue,
			"requirement type is required", fmt.Errorf("mission %s", d.ID))
	}
	if d.RequirementCount <= 0 {
		return shared.WrapError("mission", "Validate", shared.ErrValueOutOfRange,
			"requirement count must be positive", fmt.Errorf("mission %s: %d", d.ID, d.RequirementCount))
	}
	if d.XPReward < 0 {
		return shared.WrapError("mission", "Validate", shared.ErrNegativeValue,
			"xp reward cannot be negative", fmt.Errorf("mission %s: %d", d.ID, d.XPReward))
	}
	return nil
}

// HasBadgeReward сообщает, выдаёт ли миссия бейдж.
func (d Definition) HasBadgeReward() bool {
	return d.BadgeReward != ""
}
