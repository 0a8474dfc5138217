// Package catalog содержит конфигурационные данные движка: таблицу уровней,
// миссии, бейджи и правила автоматической выдачи. Каталог неизменяем после
// создания и безопасен для конкурентного чтения.
package catalog

import (
	"fmt"
	"sort"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// Catalog — проверенный набор определений.
type Catalog struct {
	levels   *progression.LevelTable
	missions []mission.Definition // по ID
	byID     map[string]mission.Definition
	byReq    map[string][]mission.Definition
	badges   []badge.Definition // по ID
	badgeIdx map[string]badge.Definition
	rules    *badge.RuleSet
}

// New проверяет определения и собирает каталог.
//
// Проверки: таблица уровней корректна; ID миссий и бейджей уникальны;
// BadgeReward миссии и BadgeID каждого правила ссылаются на существующий бейдж.
func New(levels []progression.LevelDefinition, missions []mission.Definition, badges []badge.Definition, rules []badge.Rule) (*Catalog, error) {
	table, err := progression.NewLevelTable(levels)
	if err != nil {
		return nil, invalid(err)
	}

	c := &Catalog{
		levels:   table,
		byID:     make(map[string]mission.Definition, len(missions)),
		byReq:    make(map[string][]mission.Definition),
		badgeIdx: make(map[string]badge.Definition, len(badges)),
		rules:    badge.NewRuleSet(),
	}

	for _, b := range badges {
		if err := b.Validate(); err != nil {
			return nil, invalid(err)
		}
		if _, dup := c.badgeIdx[b.ID]; dup {
			return nil, invalid(fmt.Errorf("duplicate badge %q", b.ID))
		}
		c.badgeIdx[b.ID] = b
		c.badges = append(c.badges, b)
	}
	sort.Slice(c.badges, func(i, j int) bool { return c.badges[i].ID < c.badges[j].ID })

	for _, m := range missions {
		m.RequirementType = mission.NormalizeRequirementType(m.RequirementType)
		if err := m.Validate(); err != nil {
			return nil, invalid(err)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, invalid(fmt.Errorf("duplicate mission %q", m.ID))
		}
		if m.HasBadgeReward() {
			if _, ok := c.badgeIdx[m.BadgeReward]; !ok {
				return nil, invalid(fmt.Errorf("mission %q rewards unknown badge %q", m.ID, m.BadgeReward))
			}
		}
		c.byID[m.ID] = m
		c.missions = append(c.missions, m)
	}
	sort.Slice(c.missions, func(i, j int) bool { return c.missions[i].ID < c.missions[j].ID })
	for _, m := range c.missions {
		if m.Active {
			c.byReq[m.RequirementType] = append(c.byReq[m.RequirementType], m)
		}
	}

	for _, r := range rules {
		if _, ok := c.badgeIdx[r.BadgeID]; !ok {
			return nil, invalid(fmt.Errorf("rule references unknown badge %q", r.BadgeID))
		}
		if err := c.rules.Register(r); err != nil {
			return nil, invalid(err)
		}
	}

	return c, nil
}

func invalid(err error) error {
	return shared.WrapError("catalog", "New", shared.ErrInvalidCatalog, "invalid catalog", err)
}

// Levels возвращает таблицу уровней.
func (c *Catalog) Levels() *progression.LevelTable {
	return c.levels
}

// Missions возвращает все миссии (включая неактивные), упорядоченные по ID.
func (c *Catalog) Missions() []mission.Definition {
	out := make([]mission.Definition, len(c.missions))
	copy(out, c.missions)
	return out
}

// ActiveMissions возвращает активные миссии, упорядоченные по ID.
func (c *Catalog) ActiveMissions() []mission.Definition {
	out := make([]mission.Definition, 0, len(c.missions))
	for _, m := range c.missions {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// MissionsFor возвращает активные миссии с данным тегом требования, по ID.
// Пустой результат означает неизвестный тег.
func (c *Catalog) MissionsFor(requirementType string) []mission.Definition {
	defs := c.byReq[mission.NormalizeRequirementType(requirementType)]
	out := make([]mission.Definition, len(defs))
	copy(out, defs)
	return out
}

// Mission возвращает миссию по ID.
func (c *Catalog) Mission(id string) (mission.Definition, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// Badge возвращает бейдж по ID.
func (c *Catalog) Badge(id string) (badge.Definition, bool) {
	b, ok := c.badgeIdx[id]
	return b, ok
}

// Badges возвращает все бейджи, упорядоченные по ID.
func (c *Catalog) Badges() []badge.Definition {
	out := make([]badge.Definition, len(c.badges))
	copy(out, c.badges)
	return out
}

// Rules возвращает таблицу правил автоматической выдачи.
func (c *Catalog) Rules() *badge.RuleSet {
	return c.rules
}
