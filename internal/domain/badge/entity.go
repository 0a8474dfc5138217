// Package badge содержит доменную модель бейджей: определения, одноразовые
// выдачи и таблицу правил автоматической выдачи.
package badge

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition — бейдж из каталога.
type Definition struct {
	// ID — уникальный идентификатор бейджа.
	ID string

	// Name — отображаемое название.
	Name string

	// Description — описание.
	Description string

	// Criteria — человекочитаемое условие получения.
	Criteria string

	// IconURL — иконка (опционально).
	IconURL string
}

// Validate проверяет определение.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return shared.WrapError("badge", "Validate", shared.ErrInvalidID, "badge id is required", nil)
	}
	if strings.TrimSpace(d.Name) == "" {
		return shared.WrapError("badge", "Validate", shared.ErrEmptyValue, "badge name is required", nil)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRANT
// ══════════════════════════════════════════════════════════════════════════════

// Источники выдачи.
const (
	SourceMission = "mission"
	SourceRule    = "rule"
	SourceManual  = "manual"
)

// Grant — факт выдачи бейджа. Не более одной записи на пару (UserID, BadgeID).
type Grant struct {
	UserID   string
	BadgeID  string
	Source   string
	EarnedAt time.Time
}

// NewGrant создаёт выдачу.
func NewGrant(userID, badgeID, source string, at time.Time) Grant {
	if source == "" {
		source = SourceManual
	}
	return Grant{
		UserID:   userID,
		BadgeID:  badgeID,
		Source:   source,
		EarnedAt: at.UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// GrantRepository — вставка выдач внутри транзакции.
type GrantRepository interface {
	// Insert вставляет выдачу, если её ещё нет.
	// Возвращает inserted=false, если пара (UserID, BadgeID) уже существует.
	// Уникальное ограничение хранилища — единственный авторитетный барьер.
	Insert(ctx context.Context, grant Grant) (inserted bool, err error)
}

// ReadRepository — запросы чтения выдач.
type ReadRepository interface {
	// ListGrants возвращает все выдачи пользователя.
	ListGrants(ctx context.Context, userID string) ([]Grant, error)

	// CountGrants возвращает число бейджей пользователя.
	CountGrants(ctx context.Context, userID string) (int, error)
}
