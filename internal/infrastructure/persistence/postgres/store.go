package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is the PostgreSQL implementation of every progression repository.
type Store struct {
	conn *Connection
}

// NewStore creates a Store over an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Connection returns the underlying connection.
func (s *Store) Connection() *Connection { return s.conn }

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error { return s.conn.Ping(ctx) }

// Close closes the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

// Begin opens a READ COMMITTED write transaction.
func (s *Store) Begin(ctx context.Context) (progression.UnitOfWork, error) {
	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, err
	}
	return &unitOfWork{tx: tx}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) Progressions() progression.Repository { return (*txProgressions)(u) }
func (u *unitOfWork) Missions() mission.StateRepository    { return (*txMissions)(u) }
func (u *unitOfWork) Badges() badge.GrantRepository        { return (*txBadges)(u) }

func (u *unitOfWork) Commit(ctx context.Context) error {
	return mapError("commit", u.tx.Commit(ctx))
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return mapError("rollback", err)
}

// ── progression ──────────────────────────────────────────────────────────────

type txProgressions unitOfWork

const selectProgression = `
	SELECT user_id, total_xp, current_level, created_at, updated_at
	FROM user_progression
	WHERE user_id = $1`

func (r *txProgressions) GetOrCreateForUpdate(ctx context.Context, userID string, now time.Time) (*progression.UserProgression, error) {
	initial, err := progression.NewUserProgression(userID, now)
	if err != nil {
		return nil, err
	}

	_, err = r.tx.Exec(ctx, `
		INSERT INTO user_progression (user_id, total_xp, current_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, initial.UserID, initial.TotalXP.Int(), initial.CurrentLevel, initial.CreatedAt)
	if err != nil {
		return nil, mapError("create progression", err)
	}

	p, err := scanProgression(r.tx.QueryRow(ctx, selectProgression+" FOR UPDATE", userID))
	if err != nil {
		return nil, mapError("lock progression", err)
	}
	return p, nil
}

func (r *txProgressions) Save(ctx context.Context, p *progression.UserProgression) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE user_progression
		SET total_xp = $2, current_level = $3, updated_at = $4
		WHERE user_id = $1
	`, p.UserID, p.TotalXP.Int(), p.CurrentLevel, p.UpdatedAt)
	if err != nil {
		return mapError("save progression", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save progression %s: %w", p.UserID, shared.ErrProgressionNotFound)
	}
	return nil
}

func (r *txProgressions) AppendHistory(ctx context.Context, entry progression.XPHistoryEntry) (progression.XPHistoryEntry, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO xp_history (user_id, amount, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, entry.UserID, entry.Amount, entry.Reason.String(), entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return entry, mapError("append history", err)
	}
	return entry, nil
}

// ── missions ─────────────────────────────────────────────────────────────────

type txMissions unitOfWork

const selectMissionState = `
	SELECT user_id, mission_id, progress, is_completed, completed_at, reset_at, updated_at, completions
	FROM user_missions`

func (r *txMissions) GetOrCreateForUpdate(ctx context.Context, initial *mission.UserMissionState) (*mission.UserMissionState, error) {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO user_missions (user_id, mission_id, progress, is_completed, completed_at, reset_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, mission_id) DO NOTHING
	`, initial.UserID, initial.MissionID, initial.Progress, initial.IsCompleted,
		initial.CompletedAt, initial.ResetAt, initial.UpdatedAt)
	if err != nil {
		return nil, mapError("create mission state", err)
	}

	st, err := scanMissionState(r.tx.QueryRow(ctx,
		selectMissionState+" WHERE user_id = $1 AND mission_id = $2 FOR UPDATE",
		initial.UserID, initial.MissionID))
	if err != nil {
		return nil, mapError("lock mission state", err)
	}
	return st, nil
}

func (r *txMissions) Save(ctx context.Context, st *mission.UserMissionState) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE user_missions
		SET progress = $3, is_completed = $4, completed_at = $5, reset_at = $6, updated_at = $7, completions = $8
		WHERE user_id = $1 AND mission_id = $2
	`, st.UserID, st.MissionID, st.Progress, st.IsCompleted, st.CompletedAt, st.ResetAt, st.UpdatedAt, st.Completions)
	if err != nil {
		return mapError("save mission state", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save mission state %s/%s: %w", st.UserID, st.MissionID, shared.ErrMissionNotFound)
	}
	return nil
}

// ── badges ───────────────────────────────────────────────────────────────────

type txBadges unitOfWork

func (r *txBadges) Insert(ctx context.Context, g badge.Grant) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, source, earned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, g.UserID, g.BadgeID, g.Source, g.EarnedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, fmt.Errorf("postgres: grant %s: %w", g.BadgeID, shared.ErrBadgeNotFound)
		}
		return false, mapError("insert grant", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCANNERS
// ══════════════════════════════════════════════════════════════════════════════

func scanProgression(row pgx.Row) (*progression.UserProgression, error) {
	var (
		p     progression.UserProgression
		total int
	)
	if err := row.Scan(&p.UserID, &total, &p.CurrentLevel, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressionNotFound
		}
		return nil, err
	}
	p.TotalXP = progression.XP(total)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func scanMissionState(row pgx.Row) (*mission.UserMissionState, error) {
	var st mission.UserMissionState
	err := row.Scan(&st.UserID, &st.MissionID, &st.Progress, &st.IsCompleted,
		&st.CompletedAt, &st.ResetAt, &st.UpdatedAt, &st.Completions)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrMissionNotFound
		}
		return nil, err
	}
	st.CompletedAt = utcPtr(st.CompletedAt)
	st.ResetAt = utcPtr(st.ResetAt)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
