package progression

import (
	"time"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESSION (Aggregate Root)
// ══════════════════════════════════════════════════════════════════════════════

// UserProgression — агрегат прогресса пользователя.
// Создаётся лениво при первом начислении XP: TotalXP=0, CurrentLevel=1.
type UserProgression struct {
	// UserID — уникальный идентификатор пользователя.
	UserID string

	// TotalXP — суммарный XP, монотонно неубывающий.
	TotalXP XP

	// CurrentLevel — текущий уровень (≥1). Никогда не понижается.
	CurrentLevel int

	// CreatedAt — время создания записи. Используется как tie-break в лидерборде.
	CreatedAt time.Time

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time
}

// NewUserProgression создаёт начальный прогресс пользователя.
func NewUserProgression(userID string, now time.Time) (*UserProgression, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &UserProgression{
		UserID:       userID,
		TotalXP:      0,
		CurrentLevel: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AwardOutcome — результат применения начисления к агрегату.
type AwardOutcome struct {
	PreviousXP    XP
	NewXP         XP
	PreviousLevel int
	NewLevel      LevelDefinition
	LeveledUp     bool
}

// Apply начисляет amount XP и пересчитывает уровень по таблице.
// Уровень обновляется только если новый строго выше текущего.
func (p *UserProgression) Apply(amount int, table *LevelTable, now time.Time) (AwardOutcome, error) {
	next, err := p.TotalXP.Add(amount)
	if err != nil {
		return AwardOutcome{}, err
	}

	out := AwardOutcome{
		PreviousXP:    p.TotalXP,
		NewXP:         next,
		PreviousLevel: p.CurrentLevel,
	}

	p.TotalXP = next
	p.UpdatedAt = now.UTC()

	level := table.LevelFor(next)
	if level.Number > p.CurrentLevel {
		p.CurrentLevel = level.Number
		out.LeveledUp = true
	}

	if lvl, ok := table.Get(p.CurrentLevel); ok {
		out.NewLevel = lvl
	} else {
		out.NewLevel = LevelDefinition{Number: p.CurrentLevel}
	}

	return out, nil
}

// Clone возвращает копию агрегата.
func (p *UserProgression) Clone() *UserProgression {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
