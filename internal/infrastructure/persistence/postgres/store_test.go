package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/application/engine"
	"github.com/alem-hub/alem-progression/internal/domain/shared"
)

var _ engine.Store = (*Store)(nil)

func TestMapError(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := mapError("commit", &pgconn.PgError{Code: code})
		assert.ErrorIs(t, err, shared.ErrConcurrentModification, code)
		assert.True(t, shared.IsRetryable(err), code)
	}

	err := mapError("commit", &pgconn.PgError{Code: "23505"})
	assert.NotErrorIs(t, err, shared.ErrConcurrentModification)
	assert.True(t, IsUniqueViolation(err))

	assert.NoError(t, mapError("commit", nil))
	assert.False(t, IsConflict(errors.New("plain")))
}

func TestMigrations_OrderedAndReversible(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}

	shuffled := []Migration{migs[3], migs[2], migs[0], migs[1]}
	m := NewMigratorWithMigrations(nil, shuffled)
	assert.Equal(t, 1, m.migrations[0].Version)
	assert.Equal(t, 4, m.migrations[3].Version)
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig("postgres://u:p@localhost:5432/progression?sslmode=disable")
	cfg.MaxConns = 7

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)

	_, err = Config{URL: "://bad"}.PoolConfig()
	assert.Error(t, err)
}

// TestStore_Integration runs against a real database when
// PROGRESSION_TEST_DATABASE_URL is set.
func TestStore_Integration(t *testing.T) {
	url := os.Getenv("PROGRESSION_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PROGRESSION_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	conn, err := NewConnection(ctx, DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)

	store := NewStore(conn)
	now := time.Now().UTC().Truncate(time.Microsecond)
	userID := "it-" + now.Format("150405.000000")

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	p, err := uow.Progressions().GetOrCreateForUpdate(ctx, userID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentLevel)
	require.NoError(t, uow.Commit(ctx))
	require.NoError(t, uow.Rollback(ctx))

	got, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalXP.Int())

	n, err := store.CountGreater(ctx, 1<<30)
	require.NoError(t, err)
	assert.Zero(t, n)
}
