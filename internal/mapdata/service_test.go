//go:build integration

package mapdata

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nearmap/server/internal/clusterindex"
	"github.com/nearmap/server/internal/geo"
	"github.com/nearmap/server/internal/onlineindex"
	"github.com/nearmap/server/internal/store"
)

// skipIfNoDocker mirrors internal/store's guard so `go test ./...` stays
// green on a machine without a docker daemon.
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("skipping: docker not available")
	}
}

// newTestService wires a full Service over a disposable Postgres+PostGIS
// container and a miniredis instance, matching internal/store's
// newTestStore and internal/clusterindex's newTestIndex fixtures.
func newTestService(t *testing.T, zmin, zmax int) (*Service, func()) {
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

	_, err = pool.Exec(ctx, store.SchemaSQL)
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	st := store.New(pool)
	cluster := clusterindex.New(rdb, zmin, zmax)
	online := onlineindex.New(rdb)
	svc := New(cluster, online, st, zmin, zmax)

	cleanup := func() {
		rdb.Close()
		mr.Close()
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return svc, cleanup
}

// TestViewShiftAtMaxZoomIsUnclustered covers spec.md §4.E/§8: a viewport
// query above the cluster index's cached range falls through to
// fallbackViewport, and at exactly geo.MaxZoomLevel returns raw points
// rather than grid-clustering them, even when two posts sit well within
// each other's cluster radius.
func TestViewShiftAtMaxZoomIsUnclustered(t *testing.T) {
	svc, cleanup := newTestService(t, 3, 5)
	defer cleanup()
	ctx := context.Background()

	id1, err := svc.CreatePost(ctx, "", geo.Point{X: 0, Y: 0}, "a")
	require.NoError(t, err)
	id2, err := svc.CreatePost(ctx, "", geo.Point{X: 0.0001, Y: 0.0001}, "b")
	require.NoError(t, err)

	rect := geo.Rect{Top: 10, Bottom: -10, Left: -10, Right: 10}

	posts, err := svc.Viewport(ctx, geo.MaxZoomLevel, rect)
	require.NoError(t, err)
	require.Len(t, posts, 2, "raw points at the global max zoom must not be grid-clustered")

	ids := map[string]bool{}
	for _, p := range posts {
		ids[p.ID] = true
		require.Equal(t, 1, p.Size)
	}
	require.True(t, ids[id1])
	require.True(t, ids[id2])
}

// TestViewShiftAboveCacheBoundUsesFallback covers the bug this package was
// reviewed for: a zoom above the cluster index's cached zmax must still
// return posts via fallbackViewport, not 4xx out or silently drop them.
func TestViewShiftAboveCacheBoundUsesFallback(t *testing.T) {
	svc, cleanup := newTestService(t, 3, 5)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, "", geo.Point{X: 1, Y: 1}, "hello world")
	require.NoError(t, err)

	rect := geo.Rect{Top: 10, Bottom: -10, Left: -10, Right: 10}
	posts, err := svc.Viewport(ctx, 12, rect)
	require.NoError(t, err)
	require.Len(t, posts, 1)
}
