// Package eventhandler содержит обработчики доменных событий.
// Все обработчики работают после коммита и по принципу best-effort:
// ошибка логируется и не влияет на исходную операцию.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLER
// Превращает события уровня, миссий и бейджей в уведомления и передаёт их
// в Sink. Порядок доставки не гарантирован.
// ═══════════════════════════════════════════════════════════════════════════

// Имена флагов, которыми можно отключить отдельные типы уведомлений.
const (
	FlagNotifyLevelUp          = "notify.level_up"
	FlagNotifyMissionCompleted = "notify.mission_completed"
	FlagNotifyBadgeEarned      = "notify.badge_earned"
)

// FeatureGate решает, включена ли функция для пользователя.
type FeatureGate interface {
	IsEnabledFor(featureName, userID string) bool
}

// NotificationConfig содержит конфигурацию обработчика.
type NotificationConfig struct {
	// Timeout — ограничение на одну доставку.
	Timeout time.Duration
}

// DefaultNotificationConfig возвращает конфигурацию по умолчанию.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{Timeout: 10 * time.Second}
}

// NotificationHandler отправляет уведомления о прогрессе.
type NotificationHandler struct {
	sink   notification.Sink
	gate   FeatureGate
	config NotificationConfig
	logger *slog.Logger
}

// NewNotificationHandler создаёт обработчик. gate может быть nil (всё включено).
func NewNotificationHandler(sink notification.Sink, gate FeatureGate, config NotificationConfig, log *slog.Logger) *NotificationHandler {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = notification.Discard
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultNotificationConfig().Timeout
	}
	return &NotificationHandler{
		sink:   sink,
		gate:   gate,
		config: config,
		logger: log.With("handler", "progress_notify"),
	}
}

// Subscribe регистрирует обработчик на нужные события.
func (h *NotificationHandler) Subscribe(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventLevelUp, shared.EventMissionCompleted, shared.EventBadgeEarned} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle реализует shared.EventHandler. Ошибки доставки не возвращаются.
func (h *NotificationHandler) Handle(event shared.Event) error {
	n, flag, err := h.build(event)
	if err != nil {
		h.logger.Warn("cannot build notification", "event_type", event.EventType(), logger.Err(err))
		return nil
	}
	if n == nil {
		return nil
	}
	if h.gate != nil && !h.gate.IsEnabledFor(flag, n.UserID) {
		h.logger.Debug("notification disabled", "flag", flag, logger.UserID(n.UserID))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := h.sink.Notify(ctx, n); err != nil {
		h.logger.Warn("notification delivery failed",
			logger.UserID(n.UserID),
			"type", n.Type.String(),
			logger.Err(err),
		)
		return nil
	}
	h.logger.Debug("notification sent", logger.UserID(n.UserID), "type", n.Type.String())
	return nil
}

func (h *NotificationHandler) build(event shared.Event) (*notification.Notification, string, error) {
	id := uuid.NewString()

	switch e := event.(type) {
	case shared.LevelUpEvent:
		n, err := notification.LevelUp(id, e.AggregateID(), e.NewLevel, e.LevelName, e.TotalXP, e.OccurredAt())
		return n, FlagNotifyLevelUp, err
	case shared.MissionCompletedEvent:
		n, err := notification.MissionCompleted(id, e.AggregateID(), e.MissionID, e.MissionName, e.XPReward, e.OccurredAt())
		return n, FlagNotifyMissionCompleted, err
	case shared.BadgeEarnedEvent:
		n, err := notification.BadgeEarned(id, e.AggregateID(), e.BadgeID, e.BadgeName, e.OccurredAt())
		return n, FlagNotifyBadgeEarned, err
	}
	return nil, "", nil
}
