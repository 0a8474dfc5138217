package notifier

import (
	"context"
	"log/slog"

	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// LogSink writes every notification to the structured log.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a LogSink logging at Info.
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l.With(logger.Component("notifier.log")), level: slog.LevelInfo}
}

// Notify implements notification.Sink.
func (s *LogSink) Notify(ctx context.Context, n *notification.Notification) error {
	attrs := []slog.Attr{
		logger.UserID(n.UserID),
		slog.String("notification_id", n.ID),
		slog.String("type", n.Type.String()),
		slog.String("title", n.Title),
	}
	if n.Message != "" {
		attrs = append(attrs, slog.String("message", n.Message))
	}
	for k, v := range n.Data {
		attrs = append(attrs, slog.String("data."+k, v))
	}
	s.logger.LogAttrs(ctx, s.level, "notification", attrs...)
	return nil
}
