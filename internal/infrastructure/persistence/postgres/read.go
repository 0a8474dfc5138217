package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION READS
// ══════════════════════════════════════════════════════════════════════════════

// Get implements progression.ReadRepository.
func (s *Store) Get(ctx context.Context, userID string) (*progression.UserProgression, error) {
	p, err := scanProgression(s.conn.Pool().QueryRow(ctx, selectProgression, userID))
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, mapError("get progression", err)
	}
	return p, nil
}

// ListHistory implements progression.ReadRepository. Newest first.
func (s *Store) ListHistory(ctx context.Context, userID string, offset, limit int) ([]progression.XPHistoryEntry, int, error) {
	pool := s.conn.Pool()

	var total int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM xp_history WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, mapError("count history", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT id, user_id, amount, reason, created_at
		FROM xp_history
		WHERE user_id = $1
		ORDER BY id DESC
		OFFSET $2 LIMIT $3
	`, userID, offset, limit)
	if err != nil {
		return nil, 0, mapError("list history", err)
	}
	defer rows.Close()

	entries := make([]progression.XPHistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e      progression.XPHistoryEntry
			reason string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &reason, &e.CreatedAt); err != nil {
			return nil, 0, mapError("scan history", err)
		}
		e.Reason = progression.Reason(reason)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError("list history", err)
	}
	return entries, total, nil
}

// SumHistorySince implements progression.ReadRepository.
func (s *Store) SumHistorySince(ctx context.Context, userID string, since time.Time) (int, error) {
	var sum int
	err := s.conn.Pool().QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM xp_history
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since.UTC()).Scan(&sum)
	if err != nil {
		return 0, mapError("sum history", err)
	}
	return sum, nil
}

// CountByReason implements progression.ReadRepository.
func (s *Store) CountByReason(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.conn.Pool().Query(ctx, `
		SELECT reason, COUNT(*)
		FROM xp_history
		WHERE user_id = $1
		GROUP BY reason
	`, userID)
	if err != nil {
		return nil, mapError("count by reason", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, mapError("scan reason count", err)
		}
		counts[reason] = n
	}
	return counts, rows.Err()
}

// AuditLedger implements progression.ReadRepository.
func (s *Store) AuditLedger(ctx context.Context) ([]progression.LedgerDiscrepancy, error) {
	rows, err := s.conn.Pool().Query(ctx, `
		SELECT COALESCE(p.user_id, h.user_id), COALESCE(p.total_xp, 0), COALESCE(h.ledger_sum, 0)
		FROM user_progression p
		FULL OUTER JOIN (
			SELECT user_id, SUM(amount) AS ledger_sum
			FROM xp_history
			GROUP BY user_id
		) h ON h.user_id = p.user_id
		WHERE COALESCE(p.total_xp, 0) <> COALESCE(h.ledger_sum, 0)
		ORDER BY 1
	`)
	if err != nil {
		return nil, mapError("audit ledger", err)
	}
	defer rows.Close()

	var out []progression.LedgerDiscrepancy
	for rows.Next() {
		var d progression.LedgerDiscrepancy
		if err := rows.Scan(&d.UserID, &d.TotalXP, &d.LedgerSum); err != nil {
			return nil, mapError("scan discrepancy", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSION & BADGE READS
// ══════════════════════════════════════════════════════════════════════════════

// ListStates implements mission.ReadRepository.
func (s *Store) ListStates(ctx context.Context, userID string) ([]mission.UserMissionState, error) {
	rows, err := s.conn.Pool().Query(ctx, selectMissionState+" WHERE user_id = $1 ORDER BY mission_id", userID)
	if err != nil {
		return nil, mapError("list mission states", err)
	}
	defer rows.Close()

	var out []mission.UserMissionState
	for rows.Next() {
		st, err := scanMissionState(rows)
		if err != nil {
			return nil, mapError("scan mission state", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// CountCompleted implements mission.ReadRepository.
func (s *Store) CountCompleted(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.conn.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM user_missions WHERE user_id = $1 AND is_completed`, userID).Scan(&n)
	if err != nil {
		return 0, mapError("count completed", err)
	}
	return n, nil
}

// CountCompletions implements mission.ReadRepository.
func (s *Store) CountCompletions(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.conn.Pool().QueryRow(ctx,
		`SELECT COALESCE(SUM(completions), 0) FROM user_missions WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, mapError("count completions", err)
	}
	return n, nil
}

// ListGrants implements badge.ReadRepository.
func (s *Store) ListGrants(ctx context.Context, userID string) ([]badge.Grant, error) {
	rows, err := s.conn.Pool().Query(ctx, `
		SELECT user_id, badge_id, source, earned_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY badge_id
	`, userID)
	if err != nil {
		return nil, mapError("list grants", err)
	}
	defer rows.Close()

	var out []badge.Grant
	for rows.Next() {
		var g badge.Grant
		if err := rows.Scan(&g.UserID, &g.BadgeID, &g.Source, &g.EarnedAt); err != nil {
			return nil, mapError("scan grant", err)
		}
		g.EarnedAt = g.EarnedAt.UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountGrants implements badge.ReadRepository.
func (s *Store) CountGrants(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM user_badges WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, mapError("count grants", err)
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// eligibleCTE selects progressions of learners who are not suspended.
// A user without a members row is an active learner.
const eligibleCTE = `
	WITH eligible AS (
		SELECT p.user_id, p.total_xp, p.current_level, p.created_at
		FROM user_progression p
		LEFT JOIN members m ON m.user_id = p.user_id
		WHERE m.user_id IS NULL OR (m.role = 'learner' AND NOT m.suspended)
	)`

// Page implements leaderboard.Repository.
func (s *Store) Page(ctx context.Context, offset, limit int) ([]leaderboard.Row, int, error) {
	pool := s.conn.Pool()

	var total int
	if err := pool.QueryRow(ctx, eligibleCTE+` SELECT COUNT(*) FROM eligible`).Scan(&total); err != nil {
		return nil, 0, mapError("count leaderboard", err)
	}

	rows, err := pool.Query(ctx, eligibleCTE+`
		SELECT RANK() OVER (ORDER BY total_xp DESC) AS rank,
		       user_id, total_xp, current_level, created_at
		FROM eligible
		ORDER BY total_xp DESC, created_at ASC, user_id ASC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, mapError("leaderboard page", err)
	}
	defer rows.Close()

	out := make([]leaderboard.Row, 0, limit)
	for rows.Next() {
		var r leaderboard.Row
		if err := rows.Scan(&r.Rank, &r.UserID, &r.TotalXP, &r.Level, &r.Since); err != nil {
			return nil, 0, mapError("scan leaderboard row", err)
		}
		r.Since = r.Since.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError("leaderboard page", err)
	}
	return out, total, nil
}

// CountGreater implements leaderboard.Repository.
func (s *Store) CountGreater(ctx context.Context, totalXP int) (int, error) {
	var n int
	err := s.conn.Pool().QueryRow(ctx, eligibleCTE+` SELECT COUNT(*) FROM eligible WHERE total_xp > $1`, totalXP).Scan(&n)
	if err != nil {
		return 0, mapError("count greater", err)
	}
	return n, nil
}

// UpsertMember implements leaderboard.Repository.
func (s *Store) UpsertMember(ctx context.Context, m leaderboard.Member) error {
	_, err := s.conn.Pool().Exec(ctx, `
		INSERT INTO members (user_id, role, suspended, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role, suspended = EXCLUDED.suspended, updated_at = EXCLUDED.updated_at
	`, m.UserID, string(m.Role), m.Suspended, m.UpdatedAt)
	return mapError("upsert member", err)
}

// GetMember implements leaderboard.Repository.
func (s *Store) GetMember(ctx context.Context, userID string) (*leaderboard.Member, error) {
	var (
		m    leaderboard.Member
		role string
	)
	err := s.conn.Pool().QueryRow(ctx,
		`SELECT user_id, role, suspended, updated_at FROM members WHERE user_id = $1`, userID,
	).Scan(&m.UserID, &role, &m.Suspended, &m.UpdatedAt)
	if IsNoRows(err) {
		return nil, fmt.Errorf("member %s: %w", userID, shared.ErrNotFound)
	}
	if err != nil {
		return nil, mapError("get member", err)
	}
	m.Role = leaderboard.Role(role)
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}
