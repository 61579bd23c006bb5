package mapdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hasPoint(t *testing.T, pts []weightedPoint, x, y float64, size int, blurb string, hasBlurb bool) bool {
	t.Helper()
	for _, p := range pts {
		if p.x == x && p.y == y && p.sizeOrOne() == size && p.hasBlurb == hasBlurb && p.blurb == blurb {
			return true
		}
	}
	return false
}

func TestGridClusterEmpty(t *testing.T) {
	res := gridCluster(nil, 1.0)
	assert.Empty(t, res)
}

func TestGridClusterNoLongChaining(t *testing.T) {
	pts := []weightedPoint{
		{x: 0, y: 0}, {x: 1, y: 0}, {x: 2, y: 0}, {x: 3, y: 0},
	}
	res := gridCluster(pts, 1.0)
	assert.Greater(t, len(res), 1)
}

func TestGridClusterDiagonal(t *testing.T) {
	pts := []weightedPoint{
		{x: 0.9, y: 0.9}, {x: 1.1, y: 1.1},
	}
	res := gridCluster(pts, 1.0)
	assert.Len(t, res, 1)
	assert.True(t, hasPoint(t, res, 1.0, 1.0, 2, "", false))
}

func TestGridClusterManySamePoint(t *testing.T) {
	pts := []weightedPoint{
		{x: 0.9, y: 0.9}, {x: 0.9, y: 0.9}, {x: 0.9, y: 0.9},
	}
	res := gridCluster(pts, 1.0)
	assert.Len(t, res, 1)
	assert.True(t, hasPoint(t, res, 0.9, 0.9, 3, "", false))
}

func TestGridClusterBlurbSurvivesOnlyUnclustered(t *testing.T) {
	pts := []weightedPoint{
		{x: 9.0, y: 9.0, blurb: "blurb a", hasBlurb: true},
		{x: 0.0, y: 0.0, blurb: "blurb a", hasBlurb: true},
		{x: 1.0, y: 1.0, blurb: "blurb a", hasBlurb: true},
	}
	res := gridCluster(pts, 2.0)
	assert.Len(t, res, 2)
	assert.True(t, hasPoint(t, res, 0.5, 0.5, 2, "", false))
	assert.True(t, hasPoint(t, res, 9.0, 9.0, 1, "blurb a", true))
}
