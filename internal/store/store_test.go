//go:build integration

package store

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipIfNoDocker mirrors the docker-availability guard the rest of the
// corpus's integration suites use, so `go test ./...` stays green on a
// machine without a daemon.
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("skipping: docker not available")
	}
}

// newTestStore spins up a disposable Postgres+PostGIS container, applies
// schema.sql, and returns a Store plus a cleanup func.
func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	skipIfNoDocker(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgis/postgis:16-3.4-alpine",
		tcpostgres.WithDatabase("nearmap_test"),
		tcpostgres.WithUsername("nearmap"),
		tcpostgres.WithPassword("nearmap"),
		tcpostgres.BasicWaitStrategies(),
		tcpostgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, SchemaSQL)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return New(pool), cleanup
}
