package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/alem-hub/alem-progression/internal/application/command"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/internal/interface/http/handlers"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    s.deps.Name,
		"version": s.deps.Version,
		"endpoints": fiber.Map{
			"health":      "/health",
			"leaderboard": "/api/v1/leaderboard",
			"user_stats":  "/api/v1/users/:id/stats",
		},
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := s.deps.Health.Check(c.UserContext())
	code := fiber.StatusOK
	if !status.Ready {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

func (s *Server) handleReady(c *fiber.Ctx) error {
	status := s.deps.Health.Check(c.UserContext())
	if !status.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"reason": status.Message,
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *Server) handleLive(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetLeaderboard(c *fiber.Ctx) error {
	page, err := s.deps.Service.GetLeaderboard(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) handleGetUserStats(c *fiber.Ctx) error {
	stats, err := s.deps.Service.GetUserStats(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (s *Server) handleGetAllBadges(c *fiber.Ctx) error {
	badges, err := s.deps.Service.GetAllBadges(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user_id": c.Params("id"), "badges": badges})
}

func (s *Server) handleGetUserMissions(c *fiber.Ctx) error {
	missions, err := s.deps.Service.GetUserMissions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user_id": c.Params("id"), "missions": missions})
}

func (s *Server) handleGetXPHistory(c *fiber.Ctx) error {
	hist, err := s.deps.Service.GetXPHistory(c.UserContext(), c.Params("id"), c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(hist)
}

func (s *Server) handleAuditLedger(c *fiber.Ctx) error {
	res, err := s.deps.Service.AuditLedger(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"checked_at":    res.CheckedAt,
		"consistent":    res.Consistent(),
		"discrepancies": res.Discrepancies,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type awardXPRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

type missionProgressRequest struct {
	RequirementType string `json:"requirement_type"`
	Amount          int    `json:"amount"`
}

type awardBadgeRequest struct {
	BadgeID string `json:"badge_id"`
}

type upsertMemberRequest struct {
	Role      string `json:"role"`
	Suspended bool   `json:"suspended"`
}

func (s *Server) handleAwardXP(c *fiber.Ctx) error {
	var req awardXPRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	res, err := s.deps.Service.AwardXP(c.UserContext(), c.Params("id"), req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toAwardXPResponse(res))
}

func (s *Server) handleUpdateMissionProgress(c *fiber.Ctx) error {
	var req missionProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	res, err := s.deps.Service.UpdateMissionProgress(c.UserContext(), c.Params("id"), req.RequirementType, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(toMissionProgressResponse(res))
}

func (s *Server) handleAwardBadge(c *fiber.Ctx) error {
	var req awardBadgeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	res, err := s.deps.Service.AwardBadge(c.UserContext(), c.Params("id"), req.BadgeID)
	if err != nil {
		return err
	}
	code := fiber.StatusOK
	if res.Inserted {
		code = fiber.StatusCreated
	}
	return c.Status(code).JSON(fiber.Map{"badge_id": res.BadgeID, "awarded": res.Inserted})
}

func (s *Server) handleCheckBadges(c *fiber.Ctx) error {
	res, err := s.deps.Service.CheckAndAwardBadges(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	awarded := res.Awarded
	if awarded == nil {
		awarded = []string{}
	}
	return c.JSON(fiber.Map{"evaluated": res.Evaluated, "awarded": awarded})
}

func (s *Server) handleUpsertMember(c *fiber.Ctx) error {
	var req upsertMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	m, err := s.deps.Service.UpsertMember(c.UserContext(), c.Params("id"), req.Role, req.Suspended)
	if err != nil {
		return err
	}
	return c.JSON(toMemberResponse(m))
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

type missionOutcomeResponse struct {
	MissionID        string `json:"mission_id"`
	Progress         int    `json:"progress"`
	RequirementCount int    `json:"requirement_count"`
	Reset            bool   `json:"reset,omitempty"`
	Skipped          bool   `json:"skipped,omitempty"`
	Completed        bool   `json:"completed"`
	BonusXP          int    `json:"bonus_xp,omitempty"`
	LeveledUp        bool   `json:"leveled_up,omitempty"`
	BadgeAwarded     string `json:"badge_awarded,omitempty"`
}

type awardXPResponse struct {
	EntryID       int64                    `json:"entry_id"`
	UserID        string                   `json:"user_id"`
	Amount        int                      `json:"amount"`
	Reason        string                   `json:"reason"`
	TotalXP       int                      `json:"total_xp"`
	PreviousLevel int                      `json:"previous_level"`
	Level         int                      `json:"level"`
	LevelName     string                   `json:"level_name"`
	LeveledUp     bool                     `json:"leveled_up"`
	Missions      []missionOutcomeResponse `json:"missions"`
	FollowUpError string                   `json:"follow_up_error,omitempty"`
}

type missionProgressResponse struct {
	Ignored   bool                     `json:"ignored"`
	Completed int                      `json:"completed"`
	Missions  []missionOutcomeResponse `json:"missions"`
}

type memberResponse struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Suspended bool      `json:"suspended"`
	Eligible  bool      `json:"eligible"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOutcomes(in []command.MissionOutcome) []missionOutcomeResponse {
	out := make([]missionOutcomeResponse, 0, len(in))
	for _, m := range in {
		out = append(out, missionOutcomeResponse(m))
	}
	return out
}

func toAwardXPResponse(r *command.AwardXPResult) awardXPResponse {
	resp := awardXPResponse{
		EntryID:       r.Entry.ID,
		UserID:        r.Entry.UserID,
		Amount:        r.Entry.Amount,
		Reason:        string(r.Entry.Reason),
		TotalXP:       r.TotalXP,
		PreviousLevel: r.PreviousLevel,
		Level:         r.Level,
		LevelName:     r.LevelName,
		LeveledUp:     r.LeveledUp,
		Missions:      toOutcomes(r.Missions),
	}
	if !r.EarnXP.OK() {
		resp.FollowUpError = r.EarnXP.Err.Error()
	}
	return resp
}

func toMissionProgressResponse(r *command.UpdateMissionProgressResult) missionProgressResponse {
	return missionProgressResponse{
		Ignored:   r.Ignored,
		Completed: r.CompletedCount(),
		Missions:  toOutcomes(r.Missions),
	}
}

func toMemberResponse(m *leaderboard.Member) memberResponse {
	return memberResponse{
		UserID:    m.UserID,
		Role:      string(m.Role),
		Suspended: m.Suspended,
		Eligible:  m.Eligible(),
		UpdatedAt: m.UpdatedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// statusFor maps an error to an HTTP status and a machine-readable code.
func statusFor(err error) (int, string) {
	var reqErr *requestError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &reqErr):
		return fiber.StatusBadRequest, "bad_request"
	case errors.As(err, &fiberErr):
		return fiberErr.Code, "http_error"
	case shared.IsValidation(err):
		return fiber.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrConcurrentModification):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout"
	case shared.IsExternalService(err):
		return fiber.StatusServiceUnavailable, "unavailable"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code, kind := statusFor(err)
	msg := err.Error()
	if code >= fiber.StatusInternalServerError {
		logger.FromContext(c.UserContext()).Error("request failed",
			slog.String("path", c.Path()), logger.Err(err))
		if code == fiber.StatusInternalServerError {
			msg = "An unexpected error occurred"
		}
	}
	return c.Status(code).JSON(handlers.ErrorBody{Error: kind, Message: msg})
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

type activityAdapter struct{ svc ProgressionService }

func (a activityAdapter) ApplyXP(ctx context.Context, userID string, amount int, reason string) (any, error) {
	res, err := a.svc.AwardXP(ctx, userID, amount, reason)
	if err != nil {
		return nil, err
	}
	return toAwardXPResponse(res), nil
}

func (a activityAdapter) ApplyProgress(ctx context.Context, userID, requirementType string, amount int) (any, error) {
	res, err := a.svc.UpdateMissionProgress(ctx, userID, requirementType, amount)
	if err != nil {
		return nil, err
	}
	return toMissionProgressResponse(res), nil
}
