package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/pkg/circuitbreaker"
	"github.com/alem-hub/alem-progression/pkg/logger"
	"github.com/alem-hub/alem-progression/pkg/retry"
)

func fastRetrier() *retry.Retrier {
	return retry.WebhookRetrier(
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
	)
}

func sampleNotification(t *testing.T) *notification.Notification {
	t.Helper()
	n, err := notification.New("n-1", "alice", notification.TypeBadgeEarned, "New badge",
		"First Steps", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return n.With("badge_id", "first-steps")
}

func TestWebhookSink_DeliversSignedJSON(t *testing.T) {
	var got notification.Notification
	var signature string
	var rawBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		signature = r.Header.Get(SignatureHeader)
		rawBody, _ = io.ReadAll(r.Body)
		_ = json.Unmarshal(rawBody, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{
		URL:    srv.URL,
		Secret: "s3cret",
		Retry:  fastRetrier(),
		Logger: logger.Discard(),
	})
	require.NoError(t, err)

	require.NoError(t, sink.Notify(context.Background(), sampleNotification(t)))
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, notification.TypeBadgeEarned, got.Type)
	assert.Equal(t, "first-steps", got.Data["badge_id"])

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(rawBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), signature)
}

func TestWebhookSink_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Retry: fastRetrier(), Logger: logger.Discard()})
	require.NoError(t, err)

	require.NoError(t, sink.Notify(context.Background(), sampleNotification(t)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSink_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Retry: fastRetrier(), Logger: logger.Discard()})
	require.NoError(t, err)

	err = sink.Notify(context.Background(), sampleNotification(t))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookSink_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{
		URL:             srv.URL,
		Retry:           retry.WebhookRetrier(retry.WithMaxAttempts(1)),
		BreakerFailures: 2,
		BreakerOpenFor:  time.Minute,
		Logger:          logger.Discard(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	n := sampleNotification(t)
	require.Error(t, sink.Notify(ctx, n))
	require.Error(t, sink.Notify(ctx, n))
	assert.Equal(t, circuitbreaker.StateOpen, sink.Breaker().State())

	err = sink.Notify(ctx, n)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewWebhookSink_RequiresURL(t *testing.T) {
	_, err := NewWebhookSink(WebhookConfig{})
	assert.Error(t, err)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, NewLogSink(l).Notify(context.Background(), sampleNotification(t)))
	out := buf.String()
	assert.Contains(t, out, `"user_id":"alice"`)
	assert.Contains(t, out, `"type":"badge_earned"`)
	assert.Contains(t, out, `"data.badge_id":"first-steps"`)
}

func TestFanoutSink_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var delivered atomic.Int32

	f := NewFanoutSink().
		Add("broken", notification.SinkFunc(func(context.Context, *notification.Notification) error { return boom })).
		Add("ok", notification.SinkFunc(func(context.Context, *notification.Notification) error {
			delivered.Add(1)
			return nil
		})).
		Add("nil", nil)

	assert.Equal(t, 2, f.Len())
	err := f.Notify(context.Background(), sampleNotification(t))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, int32(1), delivered.Load())
}
