package clusterindex

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nearmap/server/internal/geo"
)

func newTestIndex(t *testing.T) (*Index, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	idx := New(rdb, 3, 5)
	return idx, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestConservationOfMass(t *testing.T) {
	idx, cleanup := newTestIndex(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "p1", 0, 0, "one"))
	require.NoError(t, idx.Insert(ctx, "p2", 0.0001, 0.0001, "two"))
	require.NoError(t, idx.Insert(ctx, "p3", 50, 50, "three"))

	for z := 3; z <= 5; z++ {
		clusters, err := idx.Query(ctx, z, geo.Rect{Top: 90, Bottom: -90, Left: -180, Right: 180})
		require.NoError(t, err)

		total := 0
		for _, c := range clusters {
			total += c.Size
		}
		require.Equal(t, 3, total, "zoom %d", z)
	}
}

func TestCentroidIsWeightedMean(t *testing.T) {
	idx, cleanup := newTestIndex(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "A", 0, 0, "A"))
	require.NoError(t, idx.Insert(ctx, "B", 1, 0, "B"))

	clusters, err := idx.Query(ctx, 3, geo.Rect{Top: 10, Bottom: -10, Left: -10, Right: 10})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, 2, clusters[0].Size)
	require.InDelta(t, 0.5, clusters[0].X, 1e-6)
	require.InDelta(t, 0, clusters[0].Y, 1e-6)
}

func TestClusterMergeAtMidpoint(t *testing.T) {
	idx, cleanup := newTestIndex(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "A", 0, 0, "A"))
	require.NoError(t, idx.Insert(ctx, "B", 1, 0, "B"))

	clusters, err := idx.Query(ctx, 3, geo.Rect{Top: 10, Bottom: -10, Left: -10, Right: 10})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, 2, clusters[0].Size)
	require.False(t, clusters[0].HasBlurb)
}

func TestBlurbSurvivesOrphanZoom(t *testing.T) {
	idx, cleanup := newTestIndex(t)
	defer cleanup()
	ctx := context.Background()

	// A point far enough away that it never merges at any cached zoom
	// keeps its blurb.
	require.NoError(t, idx.Insert(ctx, "far", 170, 10, "alone"))

	clusters, err := idx.Query(ctx, 5, geo.Rect{Top: 15, Bottom: 5, Left: 165, Right: 175})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, 1, clusters[0].Size)
	require.True(t, clusters[0].HasBlurb)
	require.Equal(t, "alone", clusters[0].Blurb)
}

func TestDeleteRemovesSizeOneClusters(t *testing.T) {
	idx, cleanup := newTestIndex(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, "solo", 20, 20, "solo blurb"))
	require.NoError(t, idx.Delete(ctx, "solo"))

	clusters, err := idx.Query(ctx, 5, geo.Rect{Top: 30, Bottom: 10, Left: 10, Right: 30})
	require.NoError(t, err)
	require.Len(t, clusters, 0)
}

func TestQueryRejectsUncachedZoom(t *testing.T) {
	idx, cleanup := newTestIndex(t)
	defer cleanup()
	ctx := context.Background()

	_, err := idx.Query(ctx, 19, geo.Rect{Top: 10, Bottom: -10, Left: -10, Right: 10})
	require.ErrorIs(t, err, ErrUncachedZoom)
}
