package notification

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNELS
// ══════════════════════════════════════════════════════════════════════════════

// ChannelType определяет канал доставки.
type ChannelType string

const (
	// ChannelLog - запись в структурированный лог (локальная разработка, аудит).
	ChannelLog ChannelType = "log"

	// ChannelWebhook - HTTP POST во внешний сервис доставки (push/email).
	ChannelWebhook ChannelType = "webhook"

	// ChannelTelegram - объявление в чате сообщества.
	ChannelTelegram ChannelType = "telegram"
)

// IsValid проверяет канал.
func (ct ChannelType) IsValid() bool {
	switch ct {
	case ChannelLog, ChannelWebhook, ChannelTelegram:
		return true
	}
	return false
}

// Sink — внешний получатель уведомлений.
// Реализации обязаны быть безопасными для конкурентного использования.
// Ошибка Notify не пробрасывается в доменную операцию: вызывающий логирует её.
type Sink interface {
	Notify(ctx context.Context, n *Notification) error
}

// SinkFunc адаптирует функцию к Sink.
type SinkFunc func(ctx context.Context, n *Notification) error

// Notify вызывает f.
func (f SinkFunc) Notify(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}

// Discard — Sink, который ничего не делает.
var Discard Sink = SinkFunc(func(context.Context, *Notification) error { return nil })
