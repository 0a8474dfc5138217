// Package http exposes the progression engine over a REST API built on fiber.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/alem-hub/alem-progression/internal/application/command"
	"github.com/alem-hub/alem-progression/internal/application/query"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/interface/http/handlers"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// APIKeyHeader and APIKeys guard mutating endpoints. No keys disables the check.
	APIKeyHeader string
	APIKeys      []string

	// WebhookSecret verifies the activity webhook signature.
	WebhookSecret string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		APIKeyHeader: "X-API-Key",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionService is the engine surface served over HTTP.
type ProgressionService interface {
	AwardXP(ctx context.Context, userID string, amount int, reason string) (*command.AwardXPResult, error)
	UpdateMissionProgress(ctx context.Context, userID, requirementType string, amount int) (*command.UpdateMissionProgressResult, error)
	AwardBadge(ctx context.Context, userID, badgeID string) (*command.AwardBadgeResult, error)
	CheckAndAwardBadges(ctx context.Context, userID string) (*command.CheckBadgesResult, error)
	UpsertMember(ctx context.Context, userID, role string, suspended bool) (*leaderboard.Member, error)

	GetUserStats(ctx context.Context, userID string) (*query.UserStatsDTO, error)
	GetLeaderboard(ctx context.Context, page, limit int) (*leaderboard.Page, error)
	GetAllBadges(ctx context.Context, userID string) ([]query.BadgeStatusDTO, error)
	GetUserMissions(ctx context.Context, userID string) ([]query.MissionStatusDTO, error)
	GetXPHistory(ctx context.Context, userID string, page, limit int) (*query.XPHistoryPage, error)
	AuditLedger(ctx context.Context) (*query.AuditLedgerResult, error)
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Service ProgressionService
	Health  *handlers.CompositeHealthChecker
	Logger  *slog.Logger
	Name    string
	Version string
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	app    *fiber.App
	logger *slog.Logger
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker(deps.Version, nil)
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               deps.Name,
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(requestid.New())
	s.app.Use(handlers.RequestLogger(s.logger))
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			s.logger.Error("panic recovered", slog.Any("error", e), slog.String("path", c.Path()))
		},
	}))

	s.setupRoutes()
	return s
}

// App returns the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.app.Get("/", s.handleRoot)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/health/ready", s.handleReady)
	s.app.Get("/health/live", s.handleLive)

	auth := handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.APIKeys).Handler()

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Reads
	// ─────────────────────────────────────────────────────────────────────────
	v1 := s.app.Group("/api/v1")
	v1.Get("/leaderboard", s.handleGetLeaderboard)
	v1.Get("/users/:id/stats", s.handleGetUserStats)
	v1.Get("/users/:id/badges", s.handleGetAllBadges)
	v1.Get("/users/:id/missions", s.handleGetUserMissions)
	v1.Get("/users/:id/xp-history", s.handleGetXPHistory)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Writes (API key)
	// ─────────────────────────────────────────────────────────────────────────
	v1.Post("/users/:id/xp", auth, s.handleAwardXP)
	v1.Post("/users/:id/missions/progress", auth, s.handleUpdateMissionProgress)
	v1.Post("/users/:id/badges", auth, s.handleAwardBadge)
	v1.Post("/users/:id/badges/check", auth, s.handleCheckBadges)
	v1.Put("/members/:id", auth, s.handleUpsertMember)
	v1.Get("/admin/audit", auth, s.handleAuditLedger)

	// ─────────────────────────────────────────────────────────────────────────
	// Webhooks
	// ─────────────────────────────────────────────────────────────────────────
	// Without a signing secret the webhook falls back to the API key.
	webhook := handlers.NewActivityWebhook(s.config.WebhookSecret, activityAdapter{s.deps.Service}).Handler()
	if s.config.WebhookSecret == "" {
		s.app.Post("/webhooks/activity", auth, webhook)
	} else {
		s.app.Post("/webhooks/activity", webhook)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("address", s.config.Address()))
	if err := s.app.Listen(s.config.Address()); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
