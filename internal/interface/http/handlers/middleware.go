package handlers

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth guards mutating endpoints.
type APIKeyAuth struct {
	headerName string
	validKeys  map[string]bool
}

// NewAPIKeyAuth creates a new API key authenticator. With no keys every
// request passes.
func NewAPIKeyAuth(headerName string, keys []string) *APIKeyAuth {
	validKeys := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			validKeys[key] = true
		}
	}
	if headerName == "" {
		headerName = "X-API-Key"
	}
	return &APIKeyAuth{headerName: headerName, validKeys: validKeys}
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool { return len(a.validKeys) > 0 }

// Handler returns the fiber middleware.
func (a *APIKeyAuth) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !a.Enabled() {
			return c.Next()
		}

		key := c.Get(a.headerName)
		if key == "" {
			// Also accept Authorization: Bearer <key>
			if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorBody{Error: "missing_api_key", Message: "API key is required"})
		}
		if !a.validKeys[key] {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorBody{Error: "invalid_api_key", Message: "Invalid API key"})
		}
		return c.Next()
	}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// RequestLogger logs one line per request and stores a request-scoped logger
// in the user context.
func RequestLogger(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.GetRespHeader(fiber.HeaderXRequestID)
		l := base.With(logger.RequestID(reqID))
		c.SetUserContext(logger.WithContext(c.UserContext(), l))

		err := c.Next()
		if err != nil {
			// Let the app error handler write the response before reading the status.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		l.LogAttrs(c.UserContext(), level, "http request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			logger.Latency(time.Since(start)),
			slog.String("ip", c.IP()))
		return nil
	}
}
