package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/pkg/logger"
	"github.com/alem-hub/alem-progression/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM SINK
// ══════════════════════════════════════════════════════════════════════════════

// TelegramConfig configures TelegramSink.
type TelegramConfig struct {
	// Token is the Bot API token.
	Token string

	// ChatID is the community chat or channel receiving announcements.
	ChatID int64

	// BaseURL defaults to https://api.telegram.org.
	BaseURL string
	Timeout time.Duration

	// Types limits which notifications are announced. Empty means all.
	Types []notification.Type

	Retry      *retry.Retrier
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TelegramSink announces progress in a Telegram chat via sendMessage.
type TelegramSink struct {
	endpoint string
	chatID   int64
	types    map[notification.Type]bool
	client   *http.Client
	retrier  *retry.Retrier
	logger   *slog.Logger
}

// APIError is an error reply from the Bot API.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// NewTelegramSink creates a Telegram sink.
func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, errors.New("telegram: token and chat id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.WebhookRetrier()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var types map[notification.Type]bool
	if len(cfg.Types) > 0 {
		types = make(map[notification.Type]bool, len(cfg.Types))
		for _, t := range cfg.Types {
			types[t] = true
		}
	}

	return &TelegramSink{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(cfg.BaseURL, "/"), cfg.Token),
		chatID:   cfg.ChatID,
		types:    types,
		client:   cfg.HTTPClient,
		retrier:  cfg.Retry,
		logger:   cfg.Logger.With(logger.Component("notifier.telegram")),
	}, nil
}

// Notify implements notification.Sink.
func (s *TelegramSink) Notify(ctx context.Context, n *notification.Notification) error {
	if s.types != nil && !s.types[n.Type] {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  s.chatID,
		"text":                     FormatTelegram(n),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.send(ctx, body)
	})
}

func (s *TelegramSink) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("telegram: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return retry.Retryable(fmt.Errorf("telegram: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return retry.Retryable(fmt.Errorf("telegram: read response: %w", err))
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 500 {
			return retry.Retryable(&APIError{Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)})
		}
		return retry.Permanent(fmt.Errorf("telegram: decode response: %w", err))
	}
	if out.OK {
		return nil
	}

	apiErr := &APIError{Code: out.ErrorCode, Description: out.Description}
	if out.Parameters != nil {
		apiErr.RetryAfter = out.Parameters.RetryAfter
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
		s.logger.Warn("telegram rate limited or unavailable",
			slog.Int("code", apiErr.Code), slog.Int("retry_after", apiErr.RetryAfter))
		return retry.Retryable(apiErr)
	}
	return retry.Permanent(apiErr)
}

// FormatTelegram renders a notification as Telegram HTML.
func FormatTelegram(n *notification.Notification) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>")
	if n.Message != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(n.Message))
	}
	b.WriteString("\n<i>")
	b.WriteString(html.EscapeString(n.UserID))
	b.WriteString("</i>")
	return b.String()
}
