package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// SignatureHeader carries hex(HMAC-SHA256(secret, body)).
const SignatureHeader = "X-Progression-Signature"

// Activity kinds accepted by the webhook.
const (
	ActivityXP       = "xp"
	ActivityProgress = "progress"
)

var (
	// ErrBadSignature is returned for a missing or wrong signature.
	ErrBadSignature = errors.New("webhook: bad signature")

	// ErrUnknownActivity is returned for an unsupported activity kind.
	ErrUnknownActivity = errors.New("webhook: unknown activity kind")
)

// ActivityEvent is what the learning platform posts when a learner does
// something worth XP or mission progress.
type ActivityEvent struct {
	Kind            string `json:"kind"`
	UserID          string `json:"user_id"`
	Amount          int    `json:"amount"`
	Reason          string `json:"reason,omitempty"`
	RequirementType string `json:"requirement_type,omitempty"`
}

// ActivitySink applies activity events.
type ActivitySink interface {
	ApplyXP(ctx context.Context, userID string, amount int, reason string) (any, error)
	ApplyProgress(ctx context.Context, userID, requirementType string, amount int) (any, error)
}

// ActivityWebhook verifies and dispatches activity events.
type ActivityWebhook struct {
	secret []byte
	sink   ActivitySink
}

// NewActivityWebhook creates the webhook. An empty secret disables
// signature verification.
func NewActivityWebhook(secret string, sink ActivitySink) *ActivityWebhook {
	return &ActivityWebhook{secret: []byte(secret), sink: sink}
}

// Verify checks the body signature.
func (w *ActivityWebhook) Verify(body []byte, signature string) error {
	if len(w.secret) == 0 {
		return nil
	}
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, w.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// Handle decodes one event and applies it.
func (w *ActivityWebhook) Handle(ctx context.Context, body []byte) (any, error) {
	var ev ActivityEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("webhook: decode: %w", err)
	}

	switch ev.Kind {
	case ActivityXP:
		return w.sink.ApplyXP(ctx, ev.UserID, ev.Amount, ev.Reason)
	case ActivityProgress:
		return w.sink.ApplyProgress(ctx, ev.UserID, ev.RequirementType, ev.Amount)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivity, ev.Kind)
	}
}

// Handler returns the fiber handler. Domain errors are passed to the app
// error handler; transport errors are answered here.
func (w *ActivityWebhook) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()
		if err := w.Verify(body, c.Get(SignatureHeader)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorBody{Error: "bad_signature", Message: err.Error()})
		}

		res, err := w.Handle(c.UserContext(), body)
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) || errors.Is(err, ErrUnknownActivity) {
				return c.Status(fiber.StatusBadRequest).JSON(ErrorBody{Error: "bad_request", Message: err.Error()})
			}
			return err
		}
		return c.Status(fiber.StatusOK).JSON(res)
	}
}
