package config

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

// FeatureFlags manages feature toggles of the progression service.
// Per-user rollout is decided by a stable hash so users stay in their bucket.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100) among users.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Notification Features ===
	FeatureNotifyLevelUp          = "notify.level_up"          // "Новый уровень!"
	FeatureNotifyMissionCompleted = "notify.mission_completed" // "Миссия выполнена"
	FeatureNotifyBadgeEarned      = "notify.badge_earned"      // "Новый бейдж"

	// === Leaderboard Features ===
	FeatureLeaderboardCache   = "leaderboard.cache"   // Redis page cache
	FeatureLeaderboardArchive = "leaderboard.archive" // Weekly snapshot to S3

	// === Maintenance ===
	FeatureLedgerAudit = "maintenance.ledger_audit" // Periodic ledger/total check
)

// NewFeatureFlags creates flags with defaults and applies overrides
// (typically Config.Features parsed from FEATURES="notify.level_up:false").
func NewFeatureFlags(overrides map[string]bool) (*FeatureFlags, error) {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()

	for name, enabled := range overrides {
		f, ok := ff.features[name]
		if !ok {
			return nil, &FeatureFlagError{Feature: name, Message: "unknown feature"}
		}
		f.Enabled = enabled
		if enabled {
			f.RolloutPercent = 100
		} else {
			f.RolloutPercent = 0
		}
	}
	return ff, nil
}

func (ff *FeatureFlags) initializeDefaults() {
	for _, f := range []*Feature{
		{Name: FeatureNotifyLevelUp, Description: "Notify users when they reach a new level", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyMissionCompleted, Description: "Notify users about completed missions", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyBadgeEarned, Description: "Notify users about earned badges", Enabled: true, RolloutPercent: 100},
		{Name: FeatureLeaderboardCache, Description: "Cache leaderboard pages in Redis", Enabled: true, RolloutPercent: 100},
		{Name: FeatureLeaderboardArchive, Description: "Archive weekly leaderboard snapshots", Enabled: true, RolloutPercent: 100},
		{Name: FeatureLedgerAudit, Description: "Periodically compare ledger sums with totals", Enabled: true, RolloutPercent: 100},
	} {
		ff.features[f.Name] = f
	}
}

// IsEnabled reports whether a feature is on globally.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[featureName]
	return ok && f.Enabled && f.RolloutPercent > 0
}

// IsEnabledFor reports whether a feature is on for a particular user.
func (ff *FeatureFlags) IsEnabledFor(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[featureName]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	return inRollout(userID, featureName, f.RolloutPercent)
}

// inRollout uses consistent hashing so users stay in their bucket.
func inRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetRolloutPercent sets the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return &FeatureFlagError{Feature: featureName, Message: "percent must be 0-100"}
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[featureName]
	if !ok {
		return &FeatureFlagError{Feature: featureName, Message: "unknown feature"}
	}
	f.RolloutPercent = percent
	f.Enabled = percent > 0
	return nil
}

// Names returns all feature names, sorted.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]string, 0, len(ff.features))
	for name := range ff.features {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FeatureFlagError describes an invalid flag operation.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return fmt.Sprintf("feature flag %q: %s", e.Feature, e.Message)
}
