package leaderboard

import (
	"context"
	"time"
)

// Repository определяет контракт чтения рейтинга и управления участниками.
// Реализация находится в infrastructure слое (PostgreSQL, SQLite, memory).
type Repository interface {
	// Page возвращает строки рейтинга [offset, offset+limit) среди участников,
	// имеющих право на рейтинг, и общее число таких участников.
	// Строки упорядочены по Less и содержат ранг соревнований.
	Page(ctx context.Context, offset, limit int) ([]Row, int, error)

	// CountGreater возвращает число участников рейтинга со строго большим XP.
	CountGreater(ctx context.Context, totalXP int) (int, error)

	// UpsertMember создаёт или обновляет участника.
	UpsertMember(ctx context.Context, member Member) error

	// GetMember возвращает участника (shared.ErrNotFound, если нет записи).
	GetMember(ctx context.Context, userID string) (*Member, error)
}

// Cache — кеш страниц лидерборда (cache-aside).
// Ошибки кеша не должны ломать чтение: вызывающий откатывается к Repository.
type Cache interface {
	// GetPage возвращает закешированную страницу или shared.ErrCacheMiss.
	GetPage(ctx context.Context, page, limit int) (*Page, error)

	// SetPage сохраняет страницу на ttl.
	SetPage(ctx context.Context, page *Page, ttl time.Duration) error

	// Invalidate делает все закешированные страницы недоступными.
	Invalidate(ctx context.Context) error
}
