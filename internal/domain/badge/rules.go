package badge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY STATS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityStats — агрегированный прогресс пользователя, по которому
// вычисляются правила выдачи бейджей.
type ActivityStats struct {
	UserID            string
	TotalXP           int
	Level             int

	// CompletedMissions — выполнения миссий за всё время, включая
	// ежедневные и еженедельные, которые уже сброшены.
	CompletedMissions int

	// ReasonCounts — число записей леджера по каждой причине
	// (например, material_completed → сколько материалов пройдено).
	ReasonCounts map[string]int

	// Earned — уже полученные бейджи.
	Earned map[string]bool
}

// Count возвращает счётчик по причине (0, если нет).
func (s ActivityStats) Count(reason string) int {
	if s.ReasonCounts == nil {
		return 0
	}
	return s.ReasonCounts[reason]
}

// HasBadge сообщает, получен ли бейдж.
func (s ActivityStats) HasBadge(badgeID string) bool {
	return s.Earned != nil && s.Earned[badgeID]
}

// StatsProvider собирает ActivityStats пользователя.
type StatsProvider interface {
	ActivityStats(ctx context.Context, userID string) (ActivityStats, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// Predicate — самодостаточное условие без побочных эффектов.
type Predicate func(stats ActivityStats) bool

// Rule — пара (условие, бейдж).
type Rule struct {
	BadgeID     string
	Description string
	Predicate   Predicate
}

// MinTotalXP — суммарный XP не меньше min.
func MinTotalXP(min int) Predicate {
	return func(s ActivityStats) bool { return s.TotalXP >= min }
}

// MinLevel — уровень не ниже min.
func MinLevel(min int) Predicate {
	return func(s ActivityStats) bool { return s.Level >= min }
}

// MinReasonCount — не меньше min начислений с причиной reason.
func MinReasonCount(reason string, min int) Predicate {
	return func(s ActivityStats) bool { return s.Count(reason) >= min }
}

// MinCompletedMissions — не меньше min выполнений миссий за всё время.
func MinCompletedMissions(min int) Predicate {
	return func(s ActivityStats) bool { return s.CompletedMissions >= min }
}

// All — все условия истинны.
func All(preds ...Predicate) Predicate {
	return func(s ActivityStats) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RULE SET (registry)
// ══════════════════════════════════════════════════════════════════════════════

// RuleSet — расширяемая таблица правил. Новый бейдж добавляется регистрацией
// правила, без изменения мест вызова.
type RuleSet struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRuleSet создаёт пустую таблицу правил.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[string]Rule)}
}

// Register добавляет правило. На один бейдж допускается одно правило;
// составные условия собираются через All.
func (r *RuleSet) Register(rule Rule) error {
	if rule.BadgeID == "" || rule.Predicate == nil {
		return shared.WrapError("badge", "RegisterRule", shared.ErrInvalidInput,
			"invalid badge rule", fmt.Errorf("badge %q", rule.BadgeID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.BadgeID]; exists {
		return shared.WrapError("badge", "RegisterRule", shared.ErrAlreadyExists,
			"rule already registered for badge", fmt.Errorf("badge %q", rule.BadgeID))
	}
	r.rules[rule.BadgeID] = rule
	return nil
}

// Rules возвращает правила, упорядоченные по BadgeID.
func (r *RuleSet) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out
}

// Len возвращает число правил.
func (r *RuleSet) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Evaluate возвращает ID бейджей, условия которых выполнены и которые
// пользователь ещё не получил. Порядок детерминирован.
func (r *RuleSet) Evaluate(stats ActivityStats) []string {
	var satisfied []string
	for _, rule := range r.Rules() {
		if stats.HasBadge(rule.BadgeID) {
			continue
		}
		if rule.Predicate(stats) {
			satisfied = append(satisfied, rule.BadgeID)
		}
	}
	return satisfied
}
