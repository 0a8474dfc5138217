package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/application/engine"
	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/alem-progression/internal/interface/http/handlers"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

const testKey = "secret-key"

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	levels := []progression.LevelDefinition{
		{Number: 1, Name: "Newcomer", Slug: "newcomer", XPRequired: 0},
		{Number: 2, Name: "Learner", Slug: "learner", XPRequired: 100},
	}
	missions := []mission.Definition{
		{ID: "daily-login", Name: "Daily Login", Type: mission.TypeDaily,
			RequirementType: "login", RequirementCount: 1, XPReward: 10, Active: true},
	}
	badges := []badge.Definition{{ID: "first-steps", Name: "First Steps"}}
	c, err := catalog.New(levels, missions, badges, nil)
	require.NoError(t, err)
	return c
}

func newTestServer(t *testing.T, health *handlers.CompositeHealthChecker) *Server {
	t.Helper()
	return newTestServerWith(t, health, func(cfg *Config) {
		cfg.APIKeys = []string{testKey}
		cfg.WebhookSecret = "hook-secret"
	})
}

func newTestServerWith(t *testing.T, health *handlers.CompositeHealthChecker, configure func(*Config)) *Server {
	t.Helper()
	eng, err := engine.New(engine.Options{
		Catalog: testCatalog(t),
		Store:   memory.NewStore(),
		Clock:   clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	configure(&cfg)
	return NewServer(cfg, Dependencies{
		Service: eng,
		Health:  health,
		Logger:  logger.Discard(),
		Name:    "progression-test",
		Version: "test",
	})
}

func do(t *testing.T, s *Server, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

var authed = map[string]string{"X-API-Key": testKey}

func TestServer_AwardXPAndReadBack(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := do(t, s, nethttp.MethodPost, "/api/v1/users/alice/xp",
		map[string]any{"amount": 120, "reason": "quiz_completed"}, authed)
	require.Equal(t, nethttp.StatusCreated, code, body)
	assert.EqualValues(t, 120, body["total_xp"])
	assert.EqualValues(t, 2, body["level"])
	assert.Equal(t, true, body["leveled_up"])

	code, body = do(t, s, nethttp.MethodGet, "/api/v1/users/alice/stats", nil, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.EqualValues(t, 120, body["total_xp"])
	assert.EqualValues(t, 1, body["rank"])

	code, body = do(t, s, nethttp.MethodGet, "/api/v1/users/alice/xp-history?page=1&limit=10", nil, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Len(t, body["entries"], 1)

	code, body = do(t, s, nethttp.MethodGet, "/api/v1/leaderboard", nil, nil)
	require.Equal(t, nethttp.StatusOK, code)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].(map[string]any)["user_id"])
}

func TestServer_MissionsAndBadges(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := do(t, s, nethttp.MethodPost, "/api/v1/users/bob/missions/progress",
		map[string]any{"requirement_type": "login", "amount": 1}, authed)
	require.Equal(t, nethttp.StatusOK, code, body)
	assert.EqualValues(t, 1, body["completed"])

	code, body = do(t, s, nethttp.MethodPost, "/api/v1/users/bob/missions/progress",
		map[string]any{"requirement_type": "unknown", "amount": 1}, authed)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, true, body["ignored"])

	code, body = do(t, s, nethttp.MethodGet, "/api/v1/users/bob/missions", nil, nil)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Len(t, body["missions"], 1)

	code, _ = do(t, s, nethttp.MethodPost, "/api/v1/users/bob/badges", map[string]any{"badge_id": "first-steps"}, authed)
	assert.Equal(t, nethttp.StatusCreated, code)
	code, body = do(t, s, nethttp.MethodPost, "/api/v1/users/bob/badges", map[string]any{"badge_id": "first-steps"}, authed)
	assert.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, false, body["awarded"])

	code, _ = do(t, s, nethttp.MethodPost, "/api/v1/users/bob/badges", map[string]any{"badge_id": "nope"}, authed)
	assert.Equal(t, nethttp.StatusBadRequest, code)

	code, body = do(t, s, nethttp.MethodGet, "/api/v1/users/bob/badges", nil, nil)
	require.Equal(t, nethttp.StatusOK, code)
	badges := body["badges"].([]any)
	require.Len(t, badges, 1)
	assert.Equal(t, true, badges[0].(map[string]any)["earned"])

	code, body = do(t, s, nethttp.MethodPost, "/api/v1/users/bob/badges/check", nil, authed)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Empty(t, body["awarded"])
}

func TestServer_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := do(t, s, nethttp.MethodPost, "/api/v1/users/alice/xp",
		map[string]any{"amount": -5, "reason": "oops"}, authed)
	assert.Equal(t, nethttp.StatusBadRequest, code)
	assert.Equal(t, "validation_error", body["error"])

	code, _ = do(t, s, nethttp.MethodGet, "/api/v1/leaderboard?page=-1", nil, nil)
	assert.Equal(t, nethttp.StatusBadRequest, code)

	code, _ = do(t, s, nethttp.MethodPut, "/api/v1/members/alice", map[string]any{"role": "wizard"}, authed)
	assert.Equal(t, nethttp.StatusBadRequest, code)
}

func TestServer_APIKey(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := do(t, s, nethttp.MethodPost, "/api/v1/users/alice/xp", map[string]any{"amount": 1, "reason": "x"}, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, code)
	assert.Equal(t, "missing_api_key", body["error"])

	code, _ = do(t, s, nethttp.MethodPost, "/api/v1/users/alice/xp", map[string]any{"amount": 1, "reason": "x"},
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, nethttp.StatusUnauthorized, code)

	code, _ = do(t, s, nethttp.MethodPost, "/api/v1/users/alice/xp", map[string]any{"amount": 1, "reason": "x"},
		map[string]string{"Authorization": "Bearer " + testKey})
	assert.Equal(t, nethttp.StatusCreated, code)
}

func TestServer_MemberExcludedFromLeaderboard(t *testing.T) {
	s := newTestServer(t, nil)

	do(t, s, nethttp.MethodPost, "/api/v1/users/admin/xp", map[string]any{"amount": 500, "reason": "seed"}, authed)
	do(t, s, nethttp.MethodPost, "/api/v1/users/carol/xp", map[string]any{"amount": 50, "reason": "seed"}, authed)

	code, body := do(t, s, nethttp.MethodPut, "/api/v1/members/admin", map[string]any{"role": "admin"}, authed)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, false, body["eligible"])

	_, body = do(t, s, nethttp.MethodGet, "/api/v1/leaderboard", nil, nil)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "carol", rows[0].(map[string]any)["user_id"])

	code, body = do(t, s, nethttp.MethodGet, "/api/v1/admin/audit", nil, authed)
	require.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, true, body["consistent"])
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestServer_ActivityWebhook(t *testing.T) {
	s := newTestServer(t, nil)

	post := func(payload map[string]any, signature func([]byte) string) int {
		raw, _ := json.Marshal(payload)
		req := httptest.NewRequest(nethttp.MethodPost, "/webhooks/activity", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(handlers.SignatureHeader, signature(raw))
		resp, err := s.App().Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	good := func(b []byte) string { return sign("hook-secret", b) }

	assert.Equal(t, nethttp.StatusOK, post(map[string]any{"kind": "xp", "user_id": "dana", "amount": 30, "reason": "lesson"}, good))
	assert.Equal(t, nethttp.StatusOK, post(map[string]any{"kind": "progress", "user_id": "dana", "requirement_type": "login", "amount": 1}, good))
	assert.Equal(t, nethttp.StatusUnauthorized, post(map[string]any{"kind": "xp", "user_id": "dana", "amount": 30, "reason": "x"},
		func(b []byte) string { return sign("wrong", b) }))
	assert.Equal(t, nethttp.StatusBadRequest, post(map[string]any{"kind": "teleport", "user_id": "dana"}, good))

	_, body := do(t, s, nethttp.MethodGet, "/api/v1/users/dana/stats", nil, nil)
	assert.EqualValues(t, 40, body["total_xp"])
}

func TestServer_ActivityWebhookWithoutSecretRequiresAPIKey(t *testing.T) {
	s := newTestServerWith(t, nil, func(cfg *Config) { cfg.APIKeys = []string{testKey} })
	payload := map[string]any{"kind": "xp", "user_id": "eve", "amount": 25, "reason": "lesson"}

	status, _ := do(t, s, nethttp.MethodPost, "/webhooks/activity", payload, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)

	status, _ = do(t, s, nethttp.MethodPost, "/webhooks/activity", payload, authed)
	assert.Equal(t, nethttp.StatusOK, status)

	_, body := do(t, s, nethttp.MethodGet, "/api/v1/users/eve/stats", nil, nil)
	assert.EqualValues(t, 25, body["total_xp"])
}

func TestServer_Health(t *testing.T) {
	health := handlers.NewCompositeHealthChecker("test", nil)
	health.AddCheck("store", func(context.Context) error { return nil })
	health.AddOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	s := newTestServer(t, health)

	code, body := do(t, s, nethttp.MethodGet, "/health", nil, nil)
	assert.Equal(t, nethttp.StatusOK, code)
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, true, body["ready"])

	code, _ = do(t, s, nethttp.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, nethttp.StatusOK, code)

	health.AddCheck("store", func(context.Context) error { return errors.New("down") })
	code, body = do(t, s, nethttp.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body["status"])

	code, _ = do(t, s, nethttp.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, nethttp.StatusOK, code)
}
