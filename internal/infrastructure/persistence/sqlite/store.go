// Package sqlite provides a SQLite-backed progression store for single-node
// deployments, local runs and integration tests.
//
// Write transactions start with BEGIN IMMEDIATE, so at most one writer holds
// the database at a time; a writer that cannot get the lock within the busy
// timeout fails with a conflict and is retried by the caller.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// Store persists progression state in SQLite.
type Store struct {
	db *sql.DB
}

// Options tunes the connection.
type Options struct {
	// BusyTimeout bounds how long a writer waits for the lock.
	BusyTimeout time.Duration
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// Open opens (creating if needed) the database at path. Migrations are not
// applied; call Migrate.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		filepath.Clean(path), opts.BusyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: writers and readers queue in database/sql instead of
	// racing for the file lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Begin opens an immediate write transaction.
func (s *Store) Begin(ctx context.Context) (progression.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError("begin", err)
	}
	return &unitOfWork{tx: tx}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

func sqliteCode(err error) int {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0
	}
	return sqliteErr.Code()
}

func isBusyError(err error) bool {
	code := sqliteCode(err)
	// Extended codes keep the primary code in the low byte.
	return code&0xff == sqlite3lib.SQLITE_BUSY || code&0xff == sqlite3lib.SQLITE_LOCKED
}

func isForeignKeyError(err error) bool {
	return sqliteCode(err) == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusyError(err) {
		return shared.Conflict("sqlite."+op, err)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) Progressions() progression.Repository { return (*txProgressions)(u) }
func (u *unitOfWork) Missions() mission.StateRepository    { return (*txMissions)(u) }
func (u *unitOfWork) Badges() badge.GrantRepository        { return (*txBadges)(u) }

func (u *unitOfWork) Commit(context.Context) error {
	return mapError("commit", u.tx.Commit())
}

func (u *unitOfWork) Rollback(context.Context) error {
	err := u.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return mapError("rollback", err)
}

// ── progression ──────────────────────────────────────────────────────────────

type txProgressions unitOfWork

const selectProgression = `
	SELECT user_id, total_xp, current_level, created_at, updated_at
	FROM user_progression
	WHERE user_id = ?`

func (r *txProgressions) GetOrCreateForUpdate(ctx context.Context, userID string, now time.Time) (*progression.UserProgression, error) {
	initial, err := progression.NewUserProgression(userID, now)
	if err != nil {
		return nil, err
	}

	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO user_progression (user_id, total_xp, current_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`, initial.UserID, initial.TotalXP.Int(), initial.CurrentLevel,
		toMillis(initial.CreatedAt), toMillis(initial.UpdatedAt))
	if err != nil {
		return nil, mapError("create progression", err)
	}

	p, err := scanProgression(r.tx.QueryRowContext(ctx, selectProgression, userID))
	if err != nil {
		return nil, mapError("load progression", err)
	}
	return p, nil
}

func (r *txProgressions) Save(ctx context.Context, p *progression.UserProgression) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE user_progression
		SET total_xp = ?, current_level = ?, updated_at = ?
		WHERE user_id = ?
	`, p.TotalXP.Int(), p.CurrentLevel, toMillis(p.UpdatedAt), p.UserID)
	if err != nil {
		return mapError("save progression", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: save progression %s: %w", p.UserID, shared.ErrProgressionNotFound)
	}
	return nil
}

func (r *txProgressions) AppendHistory(ctx context.Context, entry progression.XPHistoryEntry) (progression.XPHistoryEntry, error) {
	res, err := r.tx.ExecContext(ctx, `
		INSERT INTO xp_history (user_id, amount, reason, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.UserID, entry.Amount, entry.Reason.String(), toMillis(entry.CreatedAt))
	if err != nil {
		return entry, mapError("append history", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return entry, mapError("append history", err)
	}
	entry.ID = id
	return entry, nil
}

// ── missions ─────────────────────────────────────────────────────────────────

type txMissions unitOfWork

const selectMissionState = `
	SELECT user_id, mission_id, progress, is_completed, completed_at, reset_at, updated_at, completions
	FROM user_missions`

func (r *txMissions) GetOrCreateForUpdate(ctx context.Context, initial *mission.UserMissionState) (*mission.UserMissionState, error) {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO user_missions (user_id, mission_id, progress, is_completed, completed_at, reset_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, mission_id) DO NOTHING
	`, initial.UserID, initial.MissionID, initial.Progress, initial.IsCompleted,
		toNullMillis(initial.CompletedAt), toNullMillis(initial.ResetAt), toMillis(initial.UpdatedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return nil, fmt.Errorf("sqlite: mission %s: %w", initial.MissionID, shared.ErrMissionNotFound)
		}
		return nil, mapError("create mission state", err)
	}

	st, err := scanMissionState(r.tx.QueryRowContext(ctx,
		selectMissionState+" WHERE user_id = ? AND mission_id = ?", initial.UserID, initial.MissionID))
	if err != nil {
		return nil, mapError("load mission state", err)
	}
	return st, nil
}

func (r *txMissions) Save(ctx context.Context, st *mission.UserMissionState) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE user_missions
		SET progress = ?, is_completed = ?, completed_at = ?, reset_at = ?, updated_at = ?, completions = ?
		WHERE user_id = ? AND mission_id = ?
	`, st.Progress, st.IsCompleted, toNullMillis(st.CompletedAt), toNullMillis(st.ResetAt),
		toMillis(st.UpdatedAt), st.Completions, st.UserID, st.MissionID)
	if err != nil {
		return mapError("save mission state", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: save mission state %s/%s: %w", st.UserID, st.MissionID, shared.ErrMissionNotFound)
	}
	return nil
}

// ── badges ───────────────────────────────────────────────────────────────────

type txBadges unitOfWork

func (r *txBadges) Insert(ctx context.Context, g badge.Grant) (bool, error) {
	res, err := r.tx.ExecContext(ctx, `
		INSERT INTO user_badges (user_id, badge_id, source, earned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, g.UserID, g.BadgeID, g.Source, toMillis(g.EarnedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return false, fmt.Errorf("sqlite: grant %s: %w", g.BadgeID, shared.ErrBadgeNotFound)
		}
		return false, mapError("insert grant", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError("insert grant", err)
	}
	return n == 1, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCANNERS
// ══════════════════════════════════════════════════════════════════════════════

type scanner interface {
	Scan(dest ...any) error
}

func scanProgression(row scanner) (*progression.UserProgression, error) {
	var (
		p                  progression.UserProgression
		total              int
		created, updatedAt int64
	)
	if err := row.Scan(&p.UserID, &total, &p.CurrentLevel, &created, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrProgressionNotFound
		}
		return nil, err
	}
	p.TotalXP = progression.XP(total)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func scanMissionState(row scanner) (*mission.UserMissionState, error) {
	var (
		st                 mission.UserMissionState
		completedAt, reset sql.NullInt64
		updatedAt          int64
	)
	err := row.Scan(&st.UserID, &st.MissionID, &st.Progress, &st.IsCompleted, &completedAt, &reset, &updatedAt, &st.Completions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrMissionNotFound
		}
		return nil, err
	}
	st.CompletedAt = fromNullMillis(completedAt)
	st.ResetAt = fromNullMillis(reset)
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}
