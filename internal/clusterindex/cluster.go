package clusterindex

// Cluster is a weighted centroid at one zoom level (spec.md §3). A raw
// point is seeded with Size 1 by newPoint; a zero Size is counted as 1 by
// sizeOrOne when merging. Query always returns clusters with Size >= 1.
type Cluster struct {
	ID     string
	X, Y   float64
	Size   int
	Blurb  string
	HasBlurb bool
}

// newPoint returns a fresh size-1 cluster seed for a raw point.
func newPoint(id string, x, y float64) Cluster {
	return Cluster{ID: id, X: x, Y: y, Size: 1}
}

// mergeXY applies the weighted-mean rule from spec.md §4.B step 4 and
// returns the merged (x, y, size).
func mergeXY(x1, y1 float64, size1 int, x2, y2 float64, size2 int) (float64, float64, int) {
	totalSize := size1 + size2
	x := (float64(size1)*x1 + float64(size2)*x2) / float64(totalSize)
	y := (float64(size1)*y1 + float64(size2)*y2) / float64(totalSize)
	return x, y, totalSize
}

// absorb folds other into c using the weighted-mean rule, in place.
func (c *Cluster) absorb(other Cluster) {
	x, y, size := mergeXY(c.X, c.Y, c.sizeOrOne(), other.X, other.Y, other.sizeOrOne())
	c.X, c.Y, c.Size = x, y, size
}

func (c Cluster) sizeOrOne() int {
	if c.Size == 0 {
		return 1
	}
	return c.Size
}
