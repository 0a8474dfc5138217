package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Получает страницу рейтинга среди учащихся без блокировки.
// Порядок: XP по убыванию, ранг соревнований (500, 300, 300 → 1, 2, 2).
// Страницы кешируются (cache-aside); ошибки кеша не ломают чтение.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Page - номер страницы, начиная с 1 (0 = первая).
	Page int

	// Limit - размер страницы (0 = по умолчанию).
	Limit int
}

// LeaderboardOptions — ограничения пагинации и TTL кеша.
type LeaderboardOptions struct {
	DefaultLimit int
	MaxLimit     int
	CacheTTL     time.Duration
}

// GetLeaderboardHandler обрабатывает запрос лидерборда.
type GetLeaderboardHandler struct {
	catalog *catalog.Catalog
	board   leaderboard.Repository
	cache   leaderboard.Cache
	opts    LeaderboardOptions
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewGetLeaderboardHandler создаёт обработчик. cache может быть nil.
func NewGetLeaderboardHandler(
	cat *catalog.Catalog,
	board leaderboard.Repository,
	cache leaderboard.Cache,
	opts LeaderboardOptions,
	clock clockwork.Clock,
	log *slog.Logger,
) *GetLeaderboardHandler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &GetLeaderboardHandler{
		catalog: cat,
		board:   board,
		cache:   cache,
		opts:    opts,
		clock:   clock,
		logger:  log.With(logger.Component("leaderboard_query")),
	}
}

// Handle выполняет запрос.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*leaderboard.Page, error) {
	req, err := leaderboard.PageRequest{Page: q.Page, Limit: q.Limit}.Normalize(h.opts.DefaultLimit, h.opts.MaxLimit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}

	if h.cache != nil {
		page, err := h.cache.GetPage(ctx, req.Page, req.Limit)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, shared.ErrCacheMiss) {
			h.logger.Warn("leaderboard cache read failed", logger.Err(err))
		}
	}

	page, err := h.Load(ctx, req)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetPage(ctx, page, h.opts.CacheTTL); err != nil {
			h.logger.Warn("leaderboard cache write failed", logger.Err(err))
		}
	}
	return page, nil
}

// Load reads a normalized page from the repository, bypassing the cache.
func (h *GetLeaderboardHandler) Load(ctx context.Context, req leaderboard.PageRequest) (*leaderboard.Page, error) {
	rows, total, err := h.board.Page(ctx, req.Offset(), req.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}

	levels := h.catalog.Levels()
	for i := range rows {
		if def, ok := levels.Get(rows[i].Level); ok {
			rows[i].LevelName = def.Name
		}
	}

	return &leaderboard.Page{
		Rows:        rows,
		Pagination:  leaderboard.NewPagination(req, total),
		GeneratedAt: h.clock.Now().UTC(),
	}, nil
}

// Warm loads the first pages into the cache.
func (h *GetLeaderboardHandler) Warm(ctx context.Context, pages int) (int, error) {
	if h.cache == nil {
		return 0, nil
	}
	warmed := 0
	for p := 1; p <= pages; p++ {
		req := leaderboard.PageRequest{Page: p, Limit: h.opts.DefaultLimit}
		page, err := h.Load(ctx, req)
		if err != nil {
			return warmed, err
		}
		if err := h.cache.SetPage(ctx, page, h.opts.CacheTTL); err != nil {
			return warmed, fmt.Errorf("warm page %d: %w", p, err)
		}
		warmed++
		if !page.Pagination.HasNext {
			break
		}
	}
	return warmed, nil
}
