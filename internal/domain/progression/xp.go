// Package progression содержит доменную модель XP-леджера и уровней.
//
// Леджер (XPHistoryEntry) — единственный источник правды: сумма записей
// пользователя всегда равна UserProgression.TotalXP. Уровень выводится из
// суммарного XP через монотонную таблицу порогов и никогда не понижается.
package progression

import (
	"strings"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP VALUE OBJECT
// ══════════════════════════════════════════════════════════════════════════════

// XP — количество очков опыта. Не бывает отрицательным.
type XP int

// IsValid проверяет, что значение неотрицательно.
func (x XP) IsValid() bool {
	return x >= 0
}

// Int возвращает значение как int.
func (x XP) Int() int {
	return int(x)
}

// Add прибавляет положительное количество XP.
// Отрицательные и нулевые значения отклоняются: XP нельзя тратить или списывать.
func (x XP) Add(amount int) (XP, error) {
	if amount <= 0 {
		return x, shared.ErrNonPositiveXP
	}
	return x + XP(amount), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REASON
// ══════════════════════════════════════════════════════════════════════════════

// Reason — тег причины начисления XP (например, "quiz_submitted").
type Reason string

const (
	// ReasonMissionCompleted — бонус за выполнение миссии.
	// Бонусные начисления не продвигают миссии типа earn_xp.
	ReasonMissionCompleted Reason = "mission_completed"

	// ReasonLogin — ежедневный вход.
	ReasonLogin Reason = "login"

	// ReasonMaterialCompleted — пройден учебный материал.
	ReasonMaterialCompleted Reason = "material_completed"

	// ReasonCourseCompleted — пройден курс.
	ReasonCourseCompleted Reason = "course_completed"

	// ReasonQuizSubmitted — сдан тест.
	ReasonQuizSubmitted Reason = "quiz_submitted"

	// ReasonForumPost — сообщение на форуме.
	ReasonForumPost Reason = "forum_post"

	// ReasonLikeReceived — получен лайк.
	ReasonLikeReceived Reason = "like_received"
)

// MaxReasonLength ограничивает длину тега.
const MaxReasonLength = 64

// NormalizeReason приводит тег к каноническому виду (нижний регистр, без пробелов по краям).
func NormalizeReason(raw string) (Reason, error) {
	r := strings.ToLower(strings.TrimSpace(raw))
	if r == "" || len(r) > MaxReasonLength {
		return "", shared.ErrEmptyReason
	}
	return Reason(r), nil
}

// String возвращает строковое представление.
func (r Reason) String() string {
	return string(r)
}

// IsBonus сообщает, является ли причина бонусной (наградой за миссию).
func (r Reason) IsBonus() bool {
	return r == ReasonMissionCompleted
}

// ══════════════════════════════════════════════════════════════════════════════
// XP HISTORY ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// XPHistoryEntry — одна запись леджера. Никогда не изменяется и не удаляется.
type XPHistoryEntry struct {
	// ID — порядковый номер записи, назначается хранилищем.
	ID int64

	// UserID — пользователь.
	UserID string

	// Amount — положительное количество XP.
	Amount int

	// Reason — причина начисления.
	Reason Reason

	// CreatedAt — время начисления.
	CreatedAt time.Time
}

// NewXPHistoryEntry создаёт запись леджера с проверкой инвариантов.
func NewXPHistoryEntry(userID string, amount int, reason Reason, at time.Time) (XPHistoryEntry, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return XPHistoryEntry{}, err
	}
	if amount <= 0 {
		return XPHistoryEntry{}, shared.ErrNonPositiveXP
	}
	if reason == "" {
		return XPHistoryEntry{}, shared.ErrEmptyReason
	}
	return XPHistoryEntry{
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: at.UTC(),
	}, nil
}
