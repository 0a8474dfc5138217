package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-progression/internal/domain/catalog"
)

// SyncResult counts rows written by SyncCatalog.
type SyncResult struct {
	Levels      int `json:"levels"`
	Badges      int `json:"badges"`
	Missions    int `json:"missions"`
	Deactivated int `json:"deactivated"`
}

// SyncCatalog writes the catalog definitions into levels, badges and
// missions in one transaction. Missions missing from the catalog are
// deactivated, never deleted, because user_missions references them.
func (s *Store) SyncCatalog(ctx context.Context, cat *catalog.Catalog) (SyncResult, error) {
	var res SyncResult

	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM levels`); err != nil {
			return fmt.Errorf("clear levels: %w", err)
		}
		for _, l := range cat.Levels().Levels() {
			_, err := tx.Exec(ctx, `
				INSERT INTO levels (level_number, name, slug, xp_required)
				VALUES ($1, $2, $3, $4)
			`, l.Number, l.Name, l.Slug, l.XPRequired)
			if err != nil {
				return fmt.Errorf("level %d: %w", l.Number, err)
			}
			res.Levels++
		}

		for _, b := range cat.Badges() {
			_, err := tx.Exec(ctx, `
				INSERT INTO badges (id, name, description, criteria, icon_url)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE
				SET name = EXCLUDED.name, description = EXCLUDED.description,
				    criteria = EXCLUDED.criteria, icon_url = EXCLUDED.icon_url
			`, b.ID, b.Name, b.Description, b.Criteria, b.IconURL)
			if err != nil {
				return fmt.Errorf("badge %s: %w", b.ID, err)
			}
			res.Badges++
		}

		ids := make([]string, 0, len(cat.Missions()))
		for _, m := range cat.Missions() {
			var badgeReward *string
			if m.HasBadgeReward() {
				badgeReward = &m.BadgeReward
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO missions (id, name, description, mission_type, requirement_type,
				                      requirement_count, xp_reward, badge_reward, is_active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE
				SET name = EXCLUDED.name, description = EXCLUDED.description,
				    mission_type = EXCLUDED.mission_type, requirement_type = EXCLUDED.requirement_type,
				    requirement_count = EXCLUDED.requirement_count, xp_reward = EXCLUDED.xp_reward,
				    badge_reward = EXCLUDED.badge_reward, is_active = EXCLUDED.is_active
			`, m.ID, m.Name, m.Description, string(m.Type), m.RequirementType,
				m.RequirementCount, m.XPReward, badgeReward, m.Active)
			if err != nil {
				return fmt.Errorf("mission %s: %w", m.ID, err)
			}
			ids = append(ids, m.ID)
			res.Missions++
		}

		tag, err := tx.Exec(ctx, `
			UPDATE missions SET is_active = FALSE
			WHERE is_active AND NOT (id = ANY($1))
		`, ids)
		if err != nil {
			return fmt.Errorf("deactivate missions: %w", err)
		}
		res.Deactivated = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("postgres: sync catalog: %w", err)
	}
	return res, nil
}
