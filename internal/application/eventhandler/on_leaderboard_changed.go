package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE HANDLER
// Сбрасывает закешированные страницы рейтинга, когда меняется XP или
// участие пользователя в рейтинге.
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardCacheHandler инвалидирует кеш лидерборда.
type LeaderboardCacheHandler struct {
	cache   leaderboard.Cache
	timeout time.Duration
	logger  *slog.Logger
}

// NewLeaderboardCacheHandler создаёт обработчик.
func NewLeaderboardCacheHandler(cache leaderboard.Cache, log *slog.Logger) *LeaderboardCacheHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LeaderboardCacheHandler{
		cache:   cache,
		timeout: 5 * time.Second,
		logger:  log.With("handler", "leaderboard_cache"),
	}
}

// Subscribe регистрирует обработчик.
func (h *LeaderboardCacheHandler) Subscribe(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventXPAwarded, shared.EventMemberUpdated} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle реализует shared.EventHandler.
func (h *LeaderboardCacheHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("leaderboard cache invalidation failed",
			"event_type", event.EventType(),
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
	}
	return nil
}
