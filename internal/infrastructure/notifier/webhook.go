// Package notifier implements notification.Sink adapters: a structured-log
// sink, an HTTP webhook sink and a fan-out over several sinks.
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/pkg/circuitbreaker"
	"github.com/alem-hub/alem-progression/pkg/logger"
	"github.com/alem-hub/alem-progression/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK SINK
// ══════════════════════════════════════════════════════════════════════════════

// SignatureHeader carries hex(HMAC-SHA256(secret, body)) when a secret is set.
const SignatureHeader = "X-Progression-Signature"

// StatusError is a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: status %d: %s", e.StatusCode, e.Body)
}

// WebhookConfig configures WebhookSink.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration

	// BreakerFailures consecutive failed deliveries open the breaker for BreakerOpenFor.
	BreakerFailures int
	BreakerOpenFor  time.Duration

	// Retry overrides the default webhook retrier.
	Retry *retry.Retrier

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// WebhookSink POSTs each notification as JSON.
// 5xx, 429 and transport errors are retried; other 4xx are not.
// The circuit breaker wraps the whole retried delivery.
type WebhookSink struct {
	url     string
	secret  []byte
	client  *http.Client
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.WebhookRetrier()
	}

	log := cfg.Logger.With(logger.Component("notifier.webhook"))
	breaker := circuitbreaker.WebhookBreaker(cfg.BreakerFailures, cfg.BreakerOpenFor,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		})

	return &WebhookSink{
		url:     cfg.URL,
		secret:  []byte(cfg.Secret),
		client:  cfg.HTTPClient,
		retrier: cfg.Retry,
		breaker: breaker,
		logger:  log,
	}, nil
}

// Breaker exposes the circuit breaker state for health checks.
func (s *WebhookSink) Breaker() *circuitbreaker.CircuitBreaker { return s.breaker }

// Notify implements notification.Sink.
func (s *WebhookSink) Notify(ctx context.Context, n *notification.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return s.deliver(ctx, n, body)
		})
	})
}

func (s *WebhookSink) deliver(ctx context.Context, n *notification.Notification, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("webhook: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-ID", n.ID)
	if len(s.secret) > 0 {
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(body)
		req.Header.Set(SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return retry.Retryable(fmt.Errorf("webhook: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Debug("notification delivered",
			logger.UserID(n.UserID),
			slog.String("notification_id", n.ID),
			slog.String("type", string(n.Type)))
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.Retryable(statusErr)
	}
	return retry.Permanent(statusErr)
}
