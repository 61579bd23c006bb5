//go:build integration

package mapdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearmap/server/internal/geo"
)

// TestReconcileIdempotent covers spec.md §8: running nightly reconciliation
// twice in succession converges to the same cluster state, since it flushes
// the cluster index and re-derives it from the store each time.
func TestReconcileIdempotent(t *testing.T) {
	svc, cleanup := newTestService(t, 3, 5)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, "", geo.Point{X: 0, Y: 0}, "one")
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, "", geo.Point{X: 50, Y: 50}, "two")
	require.NoError(t, err)

	rect := geo.Rect{Top: 90, Bottom: -90, Left: -180, Right: 180}

	require.NoError(t, svc.Reconcile(ctx))
	first, err := svc.Viewport(ctx, 4, rect)
	require.NoError(t, err)

	require.NoError(t, svc.Reconcile(ctx))
	second, err := svc.Viewport(ctx, 4, rect)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	totalSize := func(posts []PostView) int {
		n := 0
		for _, p := range posts {
			n += p.Size
		}
		return n
	}
	require.Equal(t, totalSize(first), totalSize(second))
}
