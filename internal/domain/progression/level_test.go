package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

func threeLevels() *LevelTable {
	return MustLevelTable([]LevelDefinition{
		{Number: 3, Name: "Explorer", XPRequired: 300},
		{Number: 1, Name: "Newcomer", XPRequired: 0},
		{Number: 2, Name: "Learner", XPRequired: 100},
	})
}

func TestNewLevelTable_Validation(t *testing.T) {
	cases := map[string][]LevelDefinition{
		"empty":             nil,
		"first not zero":    {{Number: 1, XPRequired: 10}},
		"missing level one": {{Number: 2, XPRequired: 0}},
		"duplicate":         {{Number: 1}, {Number: 2, XPRequired: 5}, {Number: 2, XPRequired: 9}},
		"not increasing":    {{Number: 1}, {Number: 2, XPRequired: 100}, {Number: 3, XPRequired: 100}},
	}
	for name, defs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLevelTable(defs)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestLevelTable_LevelFor(t *testing.T) {
	table := threeLevels()

	assert.Equal(t, 1, table.LevelFor(0).Number)
	assert.Equal(t, 1, table.LevelFor(99).Number)
	assert.Equal(t, 2, table.LevelFor(100).Number)
	assert.Equal(t, 2, table.LevelFor(299).Number)
	assert.Equal(t, 3, table.LevelFor(300).Number)
	assert.Equal(t, 3, table.LevelFor(100000).Number)
}

func TestLevelTable_LevelForIsMonotonic(t *testing.T) {
	table := threeLevels()
	prev := 0
	for xp := 0; xp <= 1000; xp += 7 {
		lvl := table.LevelFor(XP(xp)).Number
		assert.GreaterOrEqual(t, lvl, prev, "xp=%d", xp)
		prev = lvl
	}
}

func TestLevelTable_Progress(t *testing.T) {
	table := threeLevels()

	p := table.Progress(200, 2)
	require.NotNil(t, p.Next)
	assert.Equal(t, 2, p.Current.Number)
	assert.Equal(t, 3, p.Next.Number)
	assert.Equal(t, 50.0, p.Percent)
	assert.Equal(t, 100, p.XPToNextLevel)

	atMax := table.Progress(5000, 3)
	assert.Nil(t, atMax.Next)
	assert.Equal(t, 100.0, atMax.Percent)
	assert.Equal(t, 0, atMax.XPToNextLevel)
}

func TestUserProgression_Apply(t *testing.T) {
	table := threeLevels()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	p, err := NewUserProgression("u1", now)
	require.NoError(t, err)
	assert.Equal(t, XP(0), p.TotalXP)
	assert.Equal(t, 1, p.CurrentLevel)

	out, err := p.Apply(100, table, now)
	require.NoError(t, err)
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 1, out.PreviousLevel)
	assert.Equal(t, 2, out.NewLevel.Number)
	assert.Equal(t, "Learner", out.NewLevel.Name)

	out, err = p.Apply(250, table, now)
	require.NoError(t, err)
	assert.True(t, out.LeveledUp)
	assert.Equal(t, 3, p.CurrentLevel)
	assert.Equal(t, XP(350), p.TotalXP)

	out, err = p.Apply(1, table, now)
	require.NoError(t, err)
	assert.False(t, out.LeveledUp)
	assert.Equal(t, 3, out.NewLevel.Number)
}

func TestUserProgression_ApplyRejectsNonPositive(t *testing.T) {
	p, err := NewUserProgression("u1", time.Now())
	require.NoError(t, err)

	for _, amount := range []int{0, -5} {
		_, err := p.Apply(amount, threeLevels(), time.Now())
		assert.ErrorIs(t, err, shared.ErrNonPositiveXP)
	}
	assert.Equal(t, XP(0), p.TotalXP)
}

func TestUserProgression_LevelNeverRegresses(t *testing.T) {
	p, err := NewUserProgression("u1", time.Now())
	require.NoError(t, err)
	p.CurrentLevel = 3 // уровень из старой, более щедрой таблицы

	out, err := p.Apply(10, threeLevels(), time.Now())
	require.NoError(t, err)
	assert.False(t, out.LeveledUp)
	assert.Equal(t, 3, p.CurrentLevel)
}

func TestNormalizeReason(t *testing.T) {
	r, err := NormalizeReason("  Quiz_Submitted ")
	require.NoError(t, err)
	assert.Equal(t, ReasonQuizSubmitted, r)
	assert.False(t, r.IsBonus())
	assert.True(t, ReasonMissionCompleted.IsBonus())

	_, err = NormalizeReason("   ")
	assert.ErrorIs(t, err, shared.ErrEmptyReason)
}
