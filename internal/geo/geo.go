// Package geo implements the axis-aligned rectangle and quadtree-cell
// arithmetic shared by the cluster index, the map data service, and the
// room registry.
package geo

import "math"

// World half-side in degrees; the tiled world is the square [-W,W]^2.
const W = 180.0

// WorldBoundX and WorldBoundY are the real (non-square) longitude/latitude
// bounds used to validate a client-supplied viewport.
const (
	WorldBoundX = 180.0
	WorldBoundY = 90.0
)

// MaxTileLayer is the highest pub/sub tile layer a client may request.
const MaxTileLayer = 19

// MinZoomLevel and MaxZoomLevel bound the global zoom range a viewport
// request may use; the cluster index caches only its own narrower
// [zmin,zmax] sub-range.
const (
	MinZoomLevel = 3
	MaxZoomLevel = 19
)

// EarthRadiusMeters is the mean radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Point is a longitude/latitude pair in degrees.
type Point struct {
	X float64 // longitude
	Y float64 // latitude
}

// Rect is an axis-aligned rectangle in degrees.
type Rect struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

// TileSize returns the side length, in degrees, of a tile at layer L.
func TileSize(layer int) float64 {
	return (2 * W) / math.Pow(2, float64(layer))
}

// CellFor returns the tile coordinates covering p at layer L. Cell
// inclusion is bottom-left-inclusive, top-right-exclusive: a point exactly
// on a cell edge belongs to the cell to its north-east.
func CellFor(p Point, layer int) (tx, ty int) {
	size := TileSize(layer)
	tx = int(math.Floor((p.X + W) / size))
	ty = int(math.Floor((p.Y + W) / size))
	return tx, ty
}

// CellSW returns the south-west corner of the tile covering p at layer L.
func CellSW(p Point, layer int) Point {
	size := TileSize(layer)
	tx, ty := CellFor(p, layer)
	return Point{X: -W + float64(tx)*size, Y: -W + float64(ty)*size}
}

// RectValidAsView reports whether r is usable as a client viewport: top >=
// bottom, right >= left, at least one dimension strictly positive, and
// within world bounds.
func RectValidAsView(r Rect) bool {
	orderedOK := r.Top >= r.Bottom && r.Right >= r.Left
	hasAreaOK := r.Top > r.Bottom || r.Right > r.Left
	return orderedOK && hasAreaOK && WithinWorldBounds(r)
}

// WithinWorldBounds reports whether r lies within the real longitude /
// latitude bounds of the world.
func WithinWorldBounds(r Rect) bool {
	return r.Left >= -WorldBoundX && r.Right <= WorldBoundX &&
		r.Bottom >= -WorldBoundY && r.Top <= WorldBoundY
}

// HaversineMeters returns the great-circle distance between a and b in
// meters.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Y * math.Pi / 180
	lat2 := b.Y * math.Pi / 180
	dLat := (b.Y - a.Y) * math.Pi / 180
	dLon := (b.X - a.X) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// HaversineBBoxDimensions translates a degree rectangle into the (width,
// height) in meters a BYBOX geo-query needs: width measured along the
// equator-facing latitude (the bottom edge north of the equator, the top
// edge south of it, the equator itself for a rectangle spanning it), as
// twice the half-width so spans up to 360 degrees of longitude keep their
// size; height along a meridian.
func HaversineBBoxDimensions(r Rect) (widthMeters, heightMeters float64) {
	lat := 0.0
	switch {
	case r.Bottom > 0:
		lat = r.Bottom
	case r.Top < 0:
		lat = r.Top
	}
	midX := (r.Left + r.Right) / 2
	width := 2 * HaversineMeters(Point{X: r.Left, Y: lat}, Point{X: midX, Y: lat})
	height := HaversineMeters(Point{X: r.Left, Y: r.Bottom}, Point{X: r.Left, Y: r.Top})
	return width, height
}

// RoundTo5 rounds x to 5 decimal places, matching the precision used for
// room-key coordinates.
func RoundTo5(x float64) float64 {
	return math.Round(x*100000) / 100000
}

// ClusterRadiusDegrees returns R0/2^z, the cluster radius in degrees at
// zoom z.
func ClusterRadiusDegrees(z int) float64 {
	const r0 = 70.3125
	return r0 / math.Pow(2, float64(z))
}

// ClusterRadiusMeters returns R0_m/2^z, the cluster radius in meters at
// zoom z.
func ClusterRadiusMeters(z int) float64 {
	const r0m = 7827151.696402048
	return r0m / math.Pow(2, float64(z))
}
