package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/domain/badge"
	"github.com/alem-hub/alem-progression/internal/domain/mission"
	"github.com/alem-hub/alem-progression/internal/domain/progression"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

var levels = []progression.LevelDefinition{
	{Number: 1, Name: "Newcomer", XPRequired: 0},
	{Number: 2, Name: "Learner", XPRequired: 100},
}

func missions() []mission.Definition {
	return []mission.Definition{
		{ID: "weekly-quiz", Name: "Quiz Week", Type: mission.TypeWeekly, RequirementType: "submit_quiz", RequirementCount: 3, XPReward: 30, Active: true},
		{ID: "daily-quiz", Name: "Daily Quiz", Type: mission.TypeDaily, RequirementType: " Submit_Quiz ", RequirementCount: 1, XPReward: 5, Active: true},
		{ID: "old-quiz", Name: "Retired", Type: mission.TypeDaily, RequirementType: "submit_quiz", RequirementCount: 1, Active: false},
		{ID: "perfect-quiz", Name: "Perfectionist", Type: mission.TypeAchievement, RequirementType: "perfect_quiz", RequirementCount: 5, XPReward: 50, BadgeReward: "quiz-master", Active: true},
	}
}

var badges = []badge.Definition{
	{ID: "quiz-master", Name: "Quiz Master"},
	{ID: "first-material", Name: "First Steps"},
}

func TestNew_Lookups(t *testing.T) {
	c, err := New(levels, missions(), badges, []badge.Rule{
		{BadgeID: "first-material", Predicate: badge.MinReasonCount("material_completed", 1)},
	})
	require.NoError(t, err)

	quiz := c.MissionsFor("SUBMIT_QUIZ")
	require.Len(t, quiz, 2)
	assert.Equal(t, "daily-quiz", quiz[0].ID)
	assert.Equal(t, "weekly-quiz", quiz[1].ID)

	assert.Empty(t, c.MissionsFor("unknown"))
	assert.Len(t, c.Missions(), 4)
	assert.Len(t, c.ActiveMissions(), 3)

	m, ok := c.Mission("old-quiz")
	require.True(t, ok)
	assert.False(t, m.Active)

	b, ok := c.Badge("quiz-master")
	require.True(t, ok)
	assert.Equal(t, "Quiz Master", b.Name)
	assert.Equal(t, "first-material", c.Badges()[0].ID)

	assert.Equal(t, 1, c.Rules().Len())
	assert.Equal(t, 2, c.Levels().Max().Number)
}

func TestNew_RejectsDanglingReferences(t *testing.T) {
	_, err := New(levels, missions(), badges[1:], nil)
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)

	_, err = New(levels, nil, badges, []badge.Rule{{BadgeID: "ghost", Predicate: badge.MinLevel(1)}})
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)
}

func TestNew_RejectsDuplicates(t *testing.T) {
	ms := append(missions(), missions()[0])
	_, err := New(levels, ms, badges, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)

	_, err = New(levels, nil, append(badges, badges[0]), nil)
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)

	_, err = New(nil, nil, nil, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)
}
