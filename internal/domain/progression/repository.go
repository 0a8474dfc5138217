package progression

import (
	"context"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// Repository — операции над прогрессом внутри транзакции.
type Repository interface {
	// GetOrCreateForUpdate возвращает прогресс пользователя, блокируя строку
	// до конца транзакции. Если записи нет, создаёт её (TotalXP=0, уровень 1)
	// в той же транзакции.
	GetOrCreateForUpdate(ctx context.Context, userID string, now time.Time) (*UserProgression, error)

	// Save сохраняет TotalXP, CurrentLevel и UpdatedAt.
	Save(ctx context.Context, p *UserProgression) error

	// AppendHistory добавляет запись в леджер и возвращает её с назначенным ID.
	AppendHistory(ctx context.Context, entry XPHistoryEntry) (XPHistoryEntry, error)
}

// LedgerDiscrepancy — расхождение суммы леджера и TotalXP.
type LedgerDiscrepancy struct {
	UserID    string `json:"user_id"`
	TotalXP   int    `json:"total_xp"`
	LedgerSum int    `json:"ledger_sum"`
}

// Delta возвращает TotalXP - LedgerSum.
func (d LedgerDiscrepancy) Delta() int {
	return d.TotalXP - d.LedgerSum
}

// ReadRepository — запросы чтения вне транзакций.
type ReadRepository interface {
	// Get возвращает прогресс (shared.ErrProgressionNotFound, если нет записи).
	Get(ctx context.Context, userID string) (*UserProgression, error)

	// ListHistory возвращает записи леджера от новых к старым и общее их число.
	ListHistory(ctx context.Context, userID string, offset, limit int) ([]XPHistoryEntry, int, error)

	// SumHistorySince возвращает сумму начислений с момента since (включительно).
	SumHistorySince(ctx context.Context, userID string, since time.Time) (int, error)

	// CountByReason возвращает число записей леджера по каждой причине.
	CountByReason(ctx context.Context, userID string) (map[string]int, error)

	// AuditLedger возвращает пользователей, у которых сумма леджера не равна TotalXP.
	AuditLedger(ctx context.Context) ([]LedgerDiscrepancy, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork группирует изменения прогресса, миссий и бейджей в одну транзакцию.
type UnitOfWork interface {
	Progressions() Repository
	Missions() mission.StateRepository
	Badges() badge.GrantRepository

	// Commit фиксирует транзакцию.
	// Конфликт сериализации возвращается как shared.ErrConcurrentModification.
	Commit(ctx context.Context) error

	// Rollback откатывает транзакцию. Повторный вызов после Commit безопасен.
	Rollback(ctx context.Context) error
}

// UnitOfWorkFactory открывает транзакции.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
