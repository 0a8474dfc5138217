package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execCLI(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--driver", "sqlite", "--db", db}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_AwardThenStats(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execCLI(t, db, "award", "alice", "--amount", "150", "--reason", "manual")
	require.NoError(t, err)

	var award struct {
		TotalXP   int  `json:"total_xp"`
		Level     int  `json:"level"`
		LeveledUp bool `json:"leveled_up"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &award))
	assert.Equal(t, 150, award.TotalXP)
	assert.Equal(t, 2, award.Level)
	assert.True(t, award.LeveledUp)

	out, err = execCLI(t, db, "stats", "alice")
	require.NoError(t, err)

	var stats struct {
		TotalXP int `json:"total_xp"`
		Level   int `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 150, stats.TotalXP)
	assert.Equal(t, 2, stats.Level)

	_, err = execCLI(t, db, "audit")
	require.NoError(t, err)
}

func TestCLI_AwardRejectsInvalidAmount(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	db := filepath.Join(t.TempDir(), "cli.db")

	_, err := execCLI(t, db, "award", "alice", "--amount", "0")
	require.Error(t, err)
}

func TestCLI_BadgeAwardIsIdempotent(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execCLI(t, db, "badge", "award", "bob", "first-steps")
	require.NoError(t, err)
	assert.Contains(t, out, `"awarded": true`)

	out, err = execCLI(t, db, "badge", "award", "bob", "first-steps")
	require.NoError(t, err)
	assert.Contains(t, out, `"awarded": false`)
}

func TestCLI_CatalogValidateDefault(t *testing.T) {
	out, err := execCLI(t, filepath.Join(t.TempDir(), "unused.db"), "catalog", "validate")
	require.NoError(t, err)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 10, counts["levels"])
	assert.Equal(t, 6, counts["missions"])
	assert.Positive(t, counts["rules"])
}

func TestCLI_Migrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execCLI(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, `"driver": "sqlite"`)

	// second run has nothing left to apply
	out, err = execCLI(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, `"applied": 0`)
}
