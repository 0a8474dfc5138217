package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return NewMigratorWithMigrations(conn, GetMigrations())
}

// NewMigratorWithMigrations creates a migrator with custom migrations.
func NewMigratorWithMigrations(conn *Connection, migrations []Migration) *Migrator {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	return &Migrator{
		conn:       conn,
		migrations: sorted,
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Pool().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return ran, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insertQuery := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		ran++
	}

	return ran, nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		_, err := tx.Exec(ctx, deleteQuery, lastVersion)
		return err
	})
}

// Status returns the migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if appliedAt, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = appliedAt
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_progression", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_members", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "add_mission_completions", UpSQL: migration004Up, DownSQL: migration004Down},
	}
}

// ── 001: catalog ─────────────────────────────────────────────────────────────

const migration001Up = `
-- Catalog definitions, synced from the YAML catalog by progressionctl seed.
CREATE TABLE IF NOT EXISTS levels (
    level_number INTEGER PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    slug VARCHAR(100) NOT NULL,
    xp_required INTEGER NOT NULL,

    CONSTRAINT valid_level_number CHECK (level_number >= 1),
    CONSTRAINT valid_xp_required CHECK (xp_required >= 0)
);

CREATE TABLE IF NOT EXISTS badges (
    id VARCHAR(100) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    criteria TEXT NOT NULL DEFAULT '',
    icon_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS missions (
    id VARCHAR(100) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    mission_type VARCHAR(20) NOT NULL,
    requirement_type VARCHAR(100) NOT NULL,
    requirement_count INTEGER NOT NULL,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    badge_reward VARCHAR(100) REFERENCES badges(id),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_mission_type CHECK (mission_type IN ('daily', 'weekly', 'achievement')),
    CONSTRAINT valid_requirement_count CHECK (requirement_count > 0),
    CONSTRAINT valid_xp_reward CHECK (xp_reward >= 0)
);

CREATE INDEX IF NOT EXISTS idx_missions_requirement ON missions(requirement_type) WHERE is_active;
`

const migration001Down = `
DROP TABLE IF EXISTS missions;
DROP TABLE IF EXISTS badges;
DROP TABLE IF EXISTS levels;
`

// ── 002: progression ─────────────────────────────────────────────────────────

const migration002Up = `
CREATE TABLE IF NOT EXISTS user_progression (
    user_id VARCHAR(128) PRIMARY KEY,
    total_xp INTEGER NOT NULL DEFAULT 0,
    current_level INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_current_level CHECK (current_level >= 1)
);

-- Leaderboard order: total_xp DESC, created_at ASC, user_id ASC.
CREATE INDEX IF NOT EXISTS idx_user_progression_ranking
    ON user_progression(total_xp DESC, created_at ASC, user_id ASC);

-- Append-only XP ledger.
CREATE TABLE IF NOT EXISTS xp_history (
    id BIGSERIAL PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    amount INTEGER NOT NULL,
    reason VARCHAR(100) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_amount CHECK (amount > 0)
);

CREATE INDEX IF NOT EXISTS idx_xp_history_user_id ON xp_history(user_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_xp_history_user_date ON xp_history(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS user_missions (
    user_id VARCHAR(128) NOT NULL,
    mission_id VARCHAR(100) NOT NULL REFERENCES missions(id),
    progress INTEGER NOT NULL DEFAULT 0,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    reset_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, mission_id),
    CONSTRAINT valid_progress CHECK (progress >= 0)
);

CREATE TABLE IF NOT EXISTS user_badges (
    user_id VARCHAR(128) NOT NULL,
    badge_id VARCHAR(100) NOT NULL REFERENCES badges(id),
    source VARCHAR(20) NOT NULL DEFAULT 'manual',
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, badge_id)
);
`

const migration002Down = `
DROP TABLE IF EXISTS user_badges;
DROP TABLE IF EXISTS user_missions;
DROP TABLE IF EXISTS xp_history;
DROP TABLE IF EXISTS user_progression;
`

// ── 003: members ─────────────────────────────────────────────────────────────

const migration003Up = `
-- Leaderboard eligibility. Users without a row count as active learners.
CREATE TABLE IF NOT EXISTS members (
    user_id VARCHAR(128) PRIMARY KEY,
    role VARCHAR(20) NOT NULL DEFAULT 'learner',
    suspended BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('learner', 'instructor', 'admin'))
);

CREATE INDEX IF NOT EXISTS idx_members_ineligible
    ON members(user_id) WHERE role <> 'learner' OR suspended;
`

const migration003Down = `
DROP TABLE IF EXISTS members;
`

// ── 004: lifetime mission completions ────────────────────────────────────────

const migration004Up = `
-- Resets clear is_completed, so badge rules count completions here instead.
ALTER TABLE user_missions ADD COLUMN IF NOT EXISTS completions INTEGER NOT NULL DEFAULT 0;

UPDATE user_missions SET completions = 1 WHERE is_completed AND completions = 0;

ALTER TABLE user_missions DROP CONSTRAINT IF EXISTS valid_completions;
ALTER TABLE user_missions ADD CONSTRAINT valid_completions CHECK (completions >= 0);
`

const migration004Down = `
ALTER TABLE user_missions DROP CONSTRAINT IF EXISTS valid_completions;
ALTER TABLE user_missions DROP COLUMN IF EXISTS completions;
`
