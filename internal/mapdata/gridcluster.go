// Package mapdata is the map data service (spec.md §4.E): it composes
// the cluster index, online-user index, and document store into a single
// viewport-resolution API, and owns the cache-miss / grid-clustering
// fallback, write-path ordering, and nightly reconciliation.
package mapdata

import "math"

// weightedPoint is the grid-clustering accumulator: a centroid plus a
// size and, when size==1, its blurb — the in-process equivalent of
// clusterindex.Cluster used when a viewport falls outside the cached
// zoom range (spec.md §4.E "Grid clustering").
type weightedPoint struct {
	id       string
	x, y     float64
	size     int
	blurb    string
	hasBlurb bool
}

func (p weightedPoint) sizeOrOne() int {
	if p.size <= 0 {
		return 1
	}
	return p.size
}

// absorb merges other into p using the size-weighted centroid rule
// (spec.md §3 "Cluster", ported from original_source/src/cluster.rs
// merge_clusters/absorb_cluster). The merged point always loses its
// blurb, matching the source's `self.blurb = None` on absorb.
func (p *weightedPoint) absorb(other weightedPoint) {
	s1, s2 := p.sizeOrOne(), other.sizeOrOne()
	total := s1 + s2
	p.x = (float64(s1)*p.x + float64(s2)*other.x) / float64(total)
	p.y = (float64(s1)*p.y + float64(s2)*other.y) / float64(total)
	p.size = total
	p.hasBlurb = false
	p.blurb = ""
}

func dist(a, b weightedPoint) float64 {
	dx, dy := a.x-b.x, a.y-b.y
	return math.Sqrt(dx*dx + dy*dy)
}

type bucketKey struct{ x, y int }

func bucketOf(p weightedPoint, radius float64) bucketKey {
	return bucketKey{
		x: int(math.Floor(p.x / radius)),
		y: int(math.Floor(p.y / radius)),
	}
}

// gridCluster implements spec.md §4.E "Grid clustering", ported from
// original_source/src/cluster.rs (`cluster` / `cluster_grid_dfs`): bucket
// points by floor(x/r), floor(y/r) merging same-bucket points
// immediately, then DFS over occupied buckets absorbing any 8-neighbour
// bucket whose inhabitant lies within r of the growing accumulator.
func gridCluster(pts []weightedPoint, radius float64) []weightedPoint {
	if radius <= 0 {
		out := make([]weightedPoint, len(pts))
		copy(out, pts)
		return out
	}

	grid := make(map[bucketKey]weightedPoint, len(pts))
	order := make([]bucketKey, 0, len(pts))
	for _, pt := range pts {
		key := bucketOf(pt, radius)
		if existing, ok := grid[key]; ok {
			existing.absorb(pt)
			grid[key] = existing
		} else {
			grid[key] = pt
			order = append(order, key)
		}
	}

	visited := make(map[bucketKey]bool, len(grid))
	var res []weightedPoint

	for _, key := range order {
		if visited[key] {
			continue
		}
		var acc weightedPoint
		started := false
		gridDFS(grid, radius, key, &acc, &started, visited)
		if started {
			res = append(res, acc)
		}
	}
	return res
}

var neighborOffsets = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
}

func gridDFS(grid map[bucketKey]weightedPoint, radius float64, key bucketKey, acc *weightedPoint, started *bool, visited map[bucketKey]bool) {
	if visited[key] {
		return
	}
	visited[key] = true

	if !*started {
		*acc = grid[key]
		*started = true
	} else {
		inhabitant := grid[key]
		acc.absorb(inhabitant)
	}

	for _, off := range neighborOffsets {
		adj := bucketKey{x: key.x + off[0], y: key.y + off[1]}
		inhabitant, ok := grid[adj]
		if !ok || visited[adj] {
			continue
		}
		if dist(inhabitant, *acc) <= radius {
			gridDFS(grid, radius, adj, acc, started, visited)
		}
	}
}
