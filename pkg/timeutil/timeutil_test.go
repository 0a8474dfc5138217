package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToday_UsesLocalMidnight(t *testing.T) {
	// 20:30 UTC on Tuesday is already Wednesday 01:30 in Almaty.
	now := time.Date(2026, 3, 10, 20, 30, 0, 0, time.UTC)
	w := Today(now, AlmatyTZ)

	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, AlmatyTZ), w.From)
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(w.To))
}

func TestThisWeek_StartsOnMonday(t *testing.T) {
	sunday := time.Date(2026, 3, 15, 12, 0, 0, 0, AlmatyTZ)
	w := ThisWeek(sunday, AlmatyTZ)

	assert.Equal(t, time.Monday, w.From.Weekday())
	assert.Equal(t, 9, w.From.Day())
	assert.Equal(t, 7*24*time.Hour, w.To.Sub(w.From))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, AlmatyTZ, loc)

	loc, err = LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestISOWeekKey(t *testing.T) {
	assert.Equal(t, "2026-W01", ISOWeekKey(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), time.UTC))
	assert.True(t, IsSameDay(time.Date(2026, 1, 1, 1, 0, 0, 0, AlmatyTZ), time.Date(2026, 1, 1, 23, 0, 0, 0, AlmatyTZ), AlmatyTZ))
}
