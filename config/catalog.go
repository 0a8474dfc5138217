package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// CatalogFile is the YAML representation of the progression catalog.
type CatalogFile struct {
	Levels   []LevelSpec   `yaml:"levels"`
	Missions []MissionSpec `yaml:"missions"`
	Badges   []BadgeSpec   `yaml:"badges"`
	Rules    []RuleSpec    `yaml:"rules"`
}

// LevelSpec describes one level threshold.
type LevelSpec struct {
	Number     int    `yaml:"number"`
	Name       string `yaml:"name"`
	XPRequired int    `yaml:"xp_required"`
}

// MissionSpec describes one mission. Active defaults to true.
type MissionSpec struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	Type             string `yaml:"type"`
	RequirementType  string `yaml:"requirement_type"`
	RequirementCount int    `yaml:"requirement_count"`
	XPReward         int    `yaml:"xp_reward"`
	BadgeReward      string `yaml:"badge_reward"`
	Active           *bool  `yaml:"active"`
}

// BadgeSpec describes one badge.
type BadgeSpec struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Criteria    string `yaml:"criteria"`
	IconURL     string `yaml:"icon_url"`
}

// RuleSpec describes an automatic badge rule. All set conditions must hold.
type RuleSpec struct {
	Badge                string         `yaml:"badge"`
	MinTotalXP           int            `yaml:"min_total_xp"`
	MinLevel             int            `yaml:"min_level"`
	MinCompletedMissions int            `yaml:"min_completed_missions"`
	MinReasonCount       map[string]int `yaml:"min_reason_count"`
}

// LoadCatalog reads the catalog from path, or the embedded default when path is empty.
func LoadCatalog(path string) (*catalog.Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML and builds a validated catalog. Unknown keys are rejected.
func ParseCatalog(data []byte) (*catalog.Catalog, error) {
	var file CatalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return file.Build()
}

// Build converts the file into domain definitions and validates them.
func (f CatalogFile) Build() (*catalog.Catalog, error) {
	levels := make([]progression.LevelDefinition, 0, len(f.Levels))
	for _, l := range f.Levels {
		levels = append(levels, progression.LevelDefinition{
			Number:     l.Number,
			Name:       l.Name,
			Slug:       slug.Make(l.Name),
			XPRequired: l.XPRequired,
		})
	}

	badges := make([]badge.Definition, 0, len(f.Badges))
	for _, b := range f.Badges {
		id := b.ID
		if id == "" {
			id = slug.Make(b.Name)
		}
		badges = append(badges, badge.Definition{
			ID:          id,
			Name:        b.Name,
			Description: b.Description,
			Criteria:    b.Criteria,
			IconURL:     b.IconURL,
		})
	}

	missions := make([]mission.Definition, 0, len(f.Missions))
	for _, m := range f.Missions {
		typ, err := mission.ParseType(m.Type)
		if err != nil {
			return nil, fmt.Errorf("mission %q: %w", m.Name, err)
		}
		id := m.ID
		if id == "" {
			id = slug.Make(m.Name)
		}
		active := true
		if m.Active != nil {
			active = *m.Active
		}
		missions = append(missions, mission.Definition{
			ID:               id,
			Name:             m.Name,
			Description:      m.Description,
			Type:             typ,
			RequirementType:  m.RequirementType,
			RequirementCount: m.RequirementCount,
			XPReward:         m.XPReward,
			BadgeReward:      m.BadgeReward,
			Active:           active,
		})
	}

	rules := make([]badge.Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rule, err := r.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return catalog.New(levels, missions, badges, rules)
}

func (r RuleSpec) toRule() (badge.Rule, error) {
	var preds []badge.Predicate
	if r.MinTotalXP > 0 {
		preds = append(preds, badge.MinTotalXP(r.MinTotalXP))
	}
	if r.MinLevel > 0 {
		preds = append(preds, badge.MinLevel(r.MinLevel))
	}
	if r.MinCompletedMissions > 0 {
		preds = append(preds, badge.MinCompletedMissions(r.MinCompletedMissions))
	}

	reasons := make([]string, 0, len(r.MinReasonCount))
	for reason := range r.MinReasonCount {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		min := r.MinReasonCount[reason]
		if min <= 0 {
			return badge.Rule{}, fmt.Errorf("rule for badge %q: count for %q must be positive", r.Badge, reason)
		}
		norm, err := progression.NormalizeReason(reason)
		if err != nil {
			return badge.Rule{}, fmt.Errorf("rule for badge %q: %w", r.Badge, err)
		}
		preds = append(preds, badge.MinReasonCount(norm.String(), min))
	}

	if len(preds) == 0 {
		return badge.Rule{}, fmt.Errorf("rule for badge %q has no conditions", r.Badge)
	}

	desc := fmt.Sprintf("%d condition(s)", len(preds))
	pred := preds[0]
	if len(preds) > 1 {
		pred = badge.All(preds...)
	}
	return badge.Rule{BadgeID: r.Badge, Description: desc, Predicate: pred}, nil
}
