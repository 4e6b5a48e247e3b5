package store

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/authguard/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore_Contract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("authguard"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := database.FromPool(pool, slog.Default())
	require.NoError(t, db.Migrate(ctx))
	// Migrations are idempotent
	require.NoError(t, db.Migrate(ctx))

	s := NewPostgresStore(db)
	require.NoError(t, s.HealthCheck(ctx))
	runKVStoreContract(t, s)

	require.NoError(t, s.Set(ctx, Key("ratelimit", "alice"), `{"v":1}`))
	require.NoError(t, s.Set(ctx, Key("lockout", "alice"), `{"v":1}`))

	purged, err := s.PurgeStale(ctx, "ratelimit", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	// A negative age puts the cutoff in the future, so every row is stale
	purged, err = s.PurgeStale(ctx, "ratelimit", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, found, err := s.Get(ctx, Key("lockout", "alice"))
	require.NoError(t, err)
	assert.True(t, found)
}
