// Package notification содержит доменную модель уведомлений движка прогресса.
// Доставка уведомлений — best-effort: сбой канала логируется и не влияет
// на начисление XP, миссии и бейджи.
package notification

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип уведомления.
type Type string

const (
	// TypeLevelUp - пользователь перешёл на новый уровень.
	// "🎉 Новый уровень: 3 — Explorer"
	TypeLevelUp Type = "level_up"

	// TypeMissionCompleted - миссия выполнена.
	// "✅ Миссия «Daily Login» выполнена! +10 XP"
	TypeMissionCompleted Type = "mission_completed"

	// TypeBadgeEarned - получен бейдж.
	// "🏅 Новый бейдж: First Steps"
	TypeBadgeEarned Type = "badge_earned"
)

// IsValid проверяет тип уведомления.
func (t Type) IsValid() bool {
	switch t {
	case TypeLevelUp, TypeMissionCompleted, TypeBadgeEarned:
		return true
	}
	return false
}

// String возвращает строковое представление.
func (t Type) String() string {
	return string(t)
}

// Emoji возвращает эмодзи для типа.
func (t Type) Emoji() string {
	switch t {
	case TypeLevelUp:
		return "🎉"
	case TypeMissionCompleted:
		return "✅"
	case TypeBadgeEarned:
		return "🏅"
	default:
		return "🔔"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification — сообщение пользователю. Не хранится движком.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      Type              `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// New создаёт уведомление с проверкой полей.
func New(id, userID string, t Type, title, message string, at time.Time) (*Notification, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}
	if !t.IsValid() {
		return nil, shared.WrapError("notification", "New", shared.ErrInvalidInput,
			fmt.Sprintf("unknown notification type %q", t), nil)
	}
	if title == "" {
		return nil, shared.WrapError("notification", "New", shared.ErrEmptyValue, "title is required", nil)
	}
	return &Notification{
		ID:        id,
		UserID:    userID,
		Type:      t,
		Title:     title,
		Message:   message,
		Data:      make(map[string]string),
		CreatedAt: at.UTC(),
	}, nil
}

// With добавляет поле в Data и возвращает уведомление для цепочки вызовов.
func (n *Notification) With(key, value string) *Notification {
	if n.Data == nil {
		n.Data = make(map[string]string)
	}
	n.Data[key] = value
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// TEMPLATES
// ══════════════════════════════════════════════════════════════════════════════

// LevelUp строит уведомление о новом уровне.
func LevelUp(id, userID string, level int, levelName string, totalXP int, at time.Time) (*Notification, error) {
	n, err := New(id, userID, TypeLevelUp,
		fmt.Sprintf("%s Новый уровень: %d", TypeLevelUp.Emoji(), level),
		fmt.Sprintf("Ты достиг уровня %d — %s. Всего XP: %d", level, levelName, totalXP),
		at)
	if err != nil {
		return nil, err
	}
	return n.With("level", strconv.Itoa(level)).With("total_xp", strconv.Itoa(totalXP)), nil
}

// MissionCompleted строит уведомление о выполненной миссии.
func MissionCompleted(id, userID, missionID, missionName string, xpReward int, at time.Time) (*Notification, error) {
	msg := fmt.Sprintf("Миссия «%s» выполнена!", missionName)
	if xpReward > 0 {
		msg = fmt.Sprintf("%s +%d XP", msg, xpReward)
	}
	n, err := New(id, userID, TypeMissionCompleted,
		fmt.Sprintf("%s Миссия выполнена", TypeMissionCompleted.Emoji()),
		msg, at)
	if err != nil {
		return nil, err
	}
	return n.With("mission_id", missionID), nil
}

// BadgeEarned строит уведомление о полученном бейдже.
func BadgeEarned(id, userID, badgeID, badgeName string, at time.Time) (*Notification, error) {
	n, err := New(id, userID, TypeBadgeEarned,
		fmt.Sprintf("%s Новый бейдж: %s", TypeBadgeEarned.Emoji(), badgeName),
		fmt.Sprintf("Ты получил бейдж «%s»", badgeName),
		at)
	if err != nil {
		return nil, err
	}
	return n.With("badge_id", badgeID), nil
}
