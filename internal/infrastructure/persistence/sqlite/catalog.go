package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alem-hub/alem-progression/internal/domain/catalog"
)

// SyncResult counts rows written by SyncCatalog.
type SyncResult struct {
	Levels      int `json:"levels"`
	Badges      int `json:"badges"`
	Missions    int `json:"missions"`
	Deactivated int `json:"deactivated"`
}

// SyncCatalog writes the catalog into levels, badges and missions.
// Missions absent from the catalog are deactivated.
func (s *Store) SyncCatalog(ctx context.Context, cat *catalog.Catalog) (SyncResult, error) {
	var res SyncResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, mapError("sync catalog", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM levels`); err != nil {
		return res, fmt.Errorf("sqlite: clear levels: %w", err)
	}
	for _, l := range cat.Levels().Levels() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO levels (level_number, name, slug, xp_required) VALUES (?, ?, ?, ?)`,
			l.Number, l.Name, l.Slug, l.XPRequired)
		if err != nil {
			return res, fmt.Errorf("sqlite: level %d: %w", l.Number, err)
		}
		res.Levels++
	}

	for _, b := range cat.Badges() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO badges (id, name, description, criteria, icon_url)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE
			SET name = excluded.name, description = excluded.description,
			    criteria = excluded.criteria, icon_url = excluded.icon_url
		`, b.ID, b.Name, b.Description, b.Criteria, b.IconURL)
		if err != nil {
			return res, fmt.Errorf("sqlite: badge %s: %w", b.ID, err)
		}
		res.Badges++
	}

	ids := make([]any, 0, len(cat.Missions()))
	for _, m := range cat.Missions() {
		badgeReward := sql.NullString{String: m.BadgeReward, Valid: m.HasBadgeReward()}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO missions (id, name, description, mission_type, requirement_type,
			                      requirement_count, xp_reward, badge_reward, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE
			SET name = excluded.name, description = excluded.description,
			    mission_type = excluded.mission_type, requirement_type = excluded.requirement_type,
			    requirement_count = excluded.requirement_count, xp_reward = excluded.xp_reward,
			    badge_reward = excluded.badge_reward, is_active = excluded.is_active
		`, m.ID, m.Name, m.Description, string(m.Type), m.RequirementType,
			m.RequirementCount, m.XPReward, badgeReward, m.Active)
		if err != nil {
			return res, fmt.Errorf("sqlite: mission %s: %w", m.ID, err)
		}
		ids = append(ids, m.ID)
		res.Missions++
	}

	deactivate := `UPDATE missions SET is_active = 0 WHERE is_active = 1`
	if len(ids) > 0 {
		deactivate += ` AND id NOT IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
	}
	r, err := tx.ExecContext(ctx, deactivate, ids...)
	if err != nil {
		return res, fmt.Errorf("sqlite: deactivate missions: %w", err)
	}
	n, _ := r.RowsAffected()
	res.Deactivated = int(n)

	if err := tx.Commit(); err != nil {
		return res, mapError("sync catalog", err)
	}
	return res, nil
}
