// Package logger builds the process-wide slog logger and provides domain
// attribute helpers and context propagation.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ParseLevel parses a string into a slog level. Unknown values map to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures the logger.
type Options struct {
	Output  io.Writer
	Level   string
	Format  string // "json" or "text"
	Service string
	Env     string
	Version string
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  "info",
		Format: "text",
	}
}

// New creates a logger with the given options.
// JSON output is meant for production (log aggregators), text for development.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	log := slog.New(handler)

	var base []any
	if opts.Service != "" {
		base = append(base, slog.String("service", opts.Service))
	}
	if opts.Env != "" {
		base = append(base, slog.String("env", opts.Env))
	}
	if opts.Version != "" {
		base = append(base, slog.String("version", opts.Version))
	}
	if len(base) > 0 {
		log = log.With(base...)
	}
	return log
}

// Discard returns a logger that drops every record. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Context key for logger.
type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RequestIDKey is a common field key for request tracing.
const RequestIDKey = "request_id"

// Err returns an error attribute (empty value for nil).
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Progression-related logging helpers.
func UserID(id string) slog.Attr        { return slog.String("user_id", id) }
func XPAmount(xp int) slog.Attr         { return slog.Int("xp_amount", xp) }
func Reason(r string) slog.Attr         { return slog.String("reason", r) }
func Level(n int) slog.Attr             { return slog.Int("level", n) }
func MissionID(id string) slog.Attr     { return slog.String("mission_id", id) }
func BadgeID(id string) slog.Attr       { return slog.String("badge_id", id) }
func RankPosition(pos int) slog.Attr    { return slog.Int("rank_position", pos) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Operation(name string) slog.Attr   { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }
func RequestID(id string) slog.Attr     { return slog.String(RequestIDKey, id) }
