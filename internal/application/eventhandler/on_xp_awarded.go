package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/alem-progression/internal/application/command"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// BADGE CHECK HANDLER
// После начисления XP или выполнения миссии перепроверяет правила бейджей.
// Выдача идемпотентна, поэтому повторные и параллельные проверки безопасны.
// ═══════════════════════════════════════════════════════════════════════════

// BadgeChecker — проверка правил бейджей (command.CheckBadgesHandler).
type BadgeChecker interface {
	Handle(ctx context.Context, cmd command.CheckBadgesCommand) (*command.CheckBadgesResult, error)
}

// BadgeCheckHandler запускает checkAndAwardBadges по событиям прогресса.
type BadgeCheckHandler struct {
	checker BadgeChecker
	timeout time.Duration
	logger  *slog.Logger
}

// NewBadgeCheckHandler создаёт обработчик.
func NewBadgeCheckHandler(checker BadgeChecker, log *slog.Logger) *BadgeCheckHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BadgeCheckHandler{
		checker: checker,
		timeout: 15 * time.Second,
		logger:  log.With("handler", "badge_check"),
	}
}

// Subscribe регистрирует обработчик.
func (h *BadgeCheckHandler) Subscribe(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventXPAwarded, shared.EventMissionCompleted} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle реализует shared.EventHandler.
func (h *BadgeCheckHandler) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	userID := event.AggregateID()
	res, err := h.checker.Handle(ctx, command.CheckBadgesCommand{UserID: userID})
	if err != nil {
		h.logger.Warn("badge re-evaluation failed", logger.UserID(userID), logger.Err(err))
		return nil
	}
	if len(res.Awarded) > 0 {
		h.logger.Debug("badges granted after event",
			"event_type", event.EventType(), logger.UserID(userID), "badges", res.Awarded)
	}
	return nil
}
