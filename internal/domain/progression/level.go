package progression

import (
	"fmt"
	"math"
	"sort"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// LevelDefinition — порог уровня из конфигурации.
type LevelDefinition struct {
	// Number — номер уровня (уникальный, упорядоченный).
	Number int

	// Name — отображаемое название.
	Name string

	// Slug — машинное имя для URL и ключей.
	Slug string

	// XPRequired — суммарный XP, необходимый для уровня.
	XPRequired int
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL TABLE (Level Engine)
// ══════════════════════════════════════════════════════════════════════════════

// LevelTable — неизменяемая таблица порогов. Чистая функция XP → уровень.
type LevelTable struct {
	levels []LevelDefinition // по возрастанию Number
}

// NewLevelTable проверяет и упорядочивает определения уровней.
//
// Требования: хотя бы один уровень; первый уровень имеет номер 1 и порог 0;
// номера уникальны; пороги строго возрастают вместе с номером.
func NewLevelTable(defs []LevelDefinition) (*LevelTable, error) {
	if len(defs) == 0 {
		return nil, shared.WrapError("progression", "LevelTable", shared.ErrValidation,
			"invalid level table", fmt.Errorf("no levels defined"))
	}

	levels := make([]LevelDefinition, len(defs))
	copy(levels, defs)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Number < levels[j].Number })

	if levels[0].Number != 1 || levels[0].XPRequired != 0 {
		return nil, shared.WrapError("progression", "LevelTable", shared.ErrValidation,
			"invalid level table", fmt.Errorf("level 1 must require 0 xp"))
	}
	for i := 1; i < len(levels); i++ {
		prev, cur := levels[i-1], levels[i]
		if cur.Number == prev.Number {
			return nil, shared.WrapError("progression", "LevelTable", shared.ErrValidation,
				"invalid level table", fmt.Errorf("duplicate level %d", cur.Number))
		}
		if cur.XPRequired <= prev.XPRequired {
			return nil, shared.WrapError("progression", "LevelTable", shared.ErrValidation,
				"invalid level table", fmt.Errorf("level %d threshold %d is not above level %d threshold %d",
					cur.Number, cur.XPRequired, prev.Number, prev.XPRequired))
		}
	}

	return &LevelTable{levels: levels}, nil
}

// MustLevelTable — как NewLevelTable, но паникует при ошибке. Для тестов и констант.
func MustLevelTable(defs []LevelDefinition) *LevelTable {
	t, err := NewLevelTable(defs)
	if err != nil {
		panic(err)
	}
	return t
}

// Levels возвращает копию определений по возрастанию.
func (t *LevelTable) Levels() []LevelDefinition {
	out := make([]LevelDefinition, len(t.levels))
	copy(out, t.levels)
	return out
}

// LevelFor возвращает наивысший уровень, порог которого не превышает xp.
// Пороги просматриваются по убыванию; совпадений быть не может.
func (t *LevelTable) LevelFor(xp XP) LevelDefinition {
	for i := len(t.levels) - 1; i >= 0; i-- {
		if t.levels[i].XPRequired <= int(xp) {
			return t.levels[i]
		}
	}
	return t.levels[0]
}

// Get возвращает определение уровня по номеру.
func (t *LevelTable) Get(number int) (LevelDefinition, bool) {
	i := sort.Search(len(t.levels), func(i int) bool { return t.levels[i].Number >= number })
	if i < len(t.levels) && t.levels[i].Number == number {
		return t.levels[i], true
	}
	return LevelDefinition{}, false
}

// Next возвращает следующий уровень после number, если он есть.
func (t *LevelTable) Next(number int) (LevelDefinition, bool) {
	i := sort.Search(len(t.levels), func(i int) bool { return t.levels[i].Number > number })
	if i < len(t.levels) {
		return t.levels[i], true
	}
	return LevelDefinition{}, false
}

// Max возвращает максимальный уровень.
func (t *LevelTable) Max() LevelDefinition {
	return t.levels[len(t.levels)-1]
}

// LevelProgress описывает положение пользователя между порогами.
type LevelProgress struct {
	Current       LevelDefinition
	Next          *LevelDefinition
	Percent       float64
	XPToNextLevel int
}

// Progress вычисляет процент до следующего уровня:
// (xp - порог текущего) / (порог следующего - порог текущего).
// На максимальном уровне возвращает 100%.
func (t *LevelTable) Progress(xp XP, currentLevel int) LevelProgress {
	current, ok := t.Get(currentLevel)
	if !ok {
		current = t.LevelFor(xp)
	}

	next, hasNext := t.Next(current.Number)
	if !hasNext {
		return LevelProgress{Current: current, Percent: 100}
	}

	span := next.XPRequired - current.XPRequired
	gained := int(xp) - current.XPRequired
	percent := float64(gained) / float64(span) * 100
	percent = math.Max(0, math.Min(100, percent))

	toNext := next.XPRequired - int(xp)
	if toNext < 0 {
		toNext = 0
	}

	return LevelProgress{
		Current:       current,
		Next:          &next,
		Percent:       math.Round(percent*100) / 100,
		XPToNextLevel: toNext,
	}
}
