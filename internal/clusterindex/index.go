// Package clusterindex implements the per-zoom-level spatial index of post
// points described in spec.md §4.B: a geo-indexed set of weighted
// centroids per cached zoom, a size side-table, and a blurb side-table,
// backed by Redis GEOADD/GEOSEARCH.
package clusterindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nearmap/server/internal/apperr"
	"github.com/nearmap/server/internal/geo"
)

// ErrIndexUnavailable is returned when a write-path lock could not be
// acquired, or a Redis call on the write path failed outright.
var ErrIndexUnavailable = apperr.ErrIndexUnavailable

// Index is the per-zoom cluster cache. Zero value is not usable; build one
// with New.
type Index struct {
	rdb        *redis.Client
	zmin, zmax int
}

// New builds an Index over the cached zoom range [zmin, zmax] (spec.md
// default 3..5).
func New(rdb *redis.Client, zmin, zmax int) *Index {
	return &Index{rdb: rdb, zmin: zmin, zmax: zmax}
}

func zoomKey(z int) string       { return fmt.Sprintf("Z%d", z) }
func sizeKey(z int) string       { return fmt.Sprintf("size:Z%d", z) }
func blurbKey(id string) string  { return "blurb:" + id }

// Insert implements spec.md §4.B insert(cluster_id, x, y, blurb).
func (idx *Index) Insert(ctx context.Context, clusterID string, x, y float64, blurb string) error {
	lock, err := acquireLock(ctx, idx.rdb, "add post pt")
	if err != nil {
		return ErrIndexUnavailable
	}
	defer lock.release(ctx, idx.rdb)

	mergedOn := make(map[int]bool, idx.zmax-idx.zmin+1)
	touchedIDs := make(map[string]bool)

	for z := idx.zmin; z <= idx.zmax; z++ {
		nearby, err := idx.geosearchRadius(ctx, z, x, y, geo.ClusterRadiusMeters(z))
		if err != nil {
			return ErrIndexUnavailable
		}

		if len(nearby) > 0 {
			mergedOn[z] = true
		}

		newCluster := newPoint(clusterID, x, y)
		for _, n := range nearby {
			newCluster.absorb(n)
			if err := idx.deleteClusterEntry(ctx, z, n.ID); err != nil {
				return ErrIndexUnavailable
			}
			touchedIDs[n.ID] = true
		}

		if err := idx.writeCluster(ctx, z, clusterID, newCluster.X, newCluster.Y, newCluster.Size); err != nil {
			return ErrIndexUnavailable
		}
	}

	// Blurb policy (spec.md §4.B step 5).
	for id := range touchedIDs {
		stillSingle := false
		for z := idx.zmin; z <= idx.zmax; z++ {
			size, ok, err := idx.readSize(ctx, z, id)
			if err == nil && ok && size == 1 {
				stillSingle = true
				break
			}
		}
		if !stillSingle {
			if err := idx.rdb.Del(ctx, blurbKey(id)).Err(); err != nil {
				return ErrIndexUnavailable
			}
		}
	}

	fullyMerged := len(mergedOn) == (idx.zmax - idx.zmin + 1)
	if !fullyMerged {
		if err := idx.rdb.Set(ctx, blurbKey(clusterID), blurb, 0).Err(); err != nil {
			return ErrIndexUnavailable
		}
	}

	return nil
}

// Delete implements spec.md §4.B delete(post_id).
func (idx *Index) Delete(ctx context.Context, postID string) error {
	lock, err := acquireLock(ctx, idx.rdb, "delete post")
	if err != nil {
		return ErrIndexUnavailable
	}
	defer lock.release(ctx, idx.rdb)

	for z := idx.zmin; z <= idx.zmax; z++ {
		size, ok, err := idx.readSize(ctx, z, postID)
		if err != nil {
			return ErrIndexUnavailable
		}
		if ok && size == 1 {
			if err := idx.deleteClusterEntry(ctx, z, postID); err != nil {
				return ErrIndexUnavailable
			}
		}
	}

	if err := idx.rdb.Del(ctx, blurbKey(postID)).Err(); err != nil {
		return ErrIndexUnavailable
	}
	return nil
}

// Query implements spec.md §4.B query(z, rect). It returns ErrUncachedZoom
// for z outside [zmin, zmax] so the caller (internal/mapdata) falls back
// to the document store.
func (idx *Index) Query(ctx context.Context, z int, rect geo.Rect) ([]Cluster, error) {
	if z < idx.zmin || z > idx.zmax {
		return nil, ErrUncachedZoom
	}

	width, height := geo.HaversineBBoxDimensions(rect)
	centerX := (rect.Left + rect.Right) / 2
	centerY := (rect.Bottom + rect.Top) / 2

	q := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  centerX,
			Latitude:   centerY,
			BoxWidth:   width,
			BoxHeight:  height,
			BoxUnit:    "m",
		},
		WithCoord: true,
	}
	hits, err := idx.rdb.GeoSearchLocation(ctx, zoomKey(z), q).Result()
	if err != nil {
		return nil, ErrIndexUnavailable
	}

	out := make([]Cluster, 0, len(hits))
	for _, h := range hits {
		size, ok, err := idx.readSize(ctx, z, h.Name)
		if err != nil || !ok {
			continue
		}
		c := Cluster{ID: h.Name, X: h.Longitude, Y: h.Latitude, Size: size}
		if size == 1 {
			blurb, err := idx.rdb.Get(ctx, blurbKey(h.Name)).Result()
			if err == nil {
				c.Blurb = blurb
				c.HasBlurb = true
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// Flush drops every cached zoom's geo-set and size-table. Used by the
// nightly reconciliation job (spec.md §4.E step 2).
func (idx *Index) Flush(ctx context.Context) error {
	keys := make([]string, 0, 2*(idx.zmax-idx.zmin+1))
	for z := idx.zmin; z <= idx.zmax; z++ {
		keys = append(keys, zoomKey(z), sizeKey(z))
	}
	return idx.rdb.Del(ctx, keys...).Err()
}

func (idx *Index) geosearchRadius(ctx context.Context, z int, x, y, radiusMeters float64) ([]Cluster, error) {
	q := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  x,
			Latitude:   y,
			Radius:     radiusMeters,
			RadiusUnit: "m",
		},
		WithCoord: true,
	}
	hits, err := idx.rdb.GeoSearchLocation(ctx, zoomKey(z), q).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Cluster, 0, len(hits))
	for _, h := range hits {
		size, ok, err := idx.readSize(ctx, z, h.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			size = 1
		}
		out = append(out, Cluster{ID: h.Name, X: h.Longitude, Y: h.Latitude, Size: size})
	}
	return out, nil
}

func (idx *Index) readSize(ctx context.Context, z int, id string) (size int, ok bool, err error) {
	val, err := idx.rdb.HGet(ctx, sizeKey(z), id).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

func (idx *Index) writeCluster(ctx context.Context, z int, id string, x, y float64, size int) error {
	pipe := idx.rdb.TxPipeline()
	pipe.GeoAdd(ctx, zoomKey(z), &redis.GeoLocation{Name: id, Longitude: x, Latitude: y})
	pipe.HSet(ctx, sizeKey(z), id, size)
	_, err := pipe.Exec(ctx)
	return err
}

func (idx *Index) deleteClusterEntry(ctx context.Context, z int, id string) error {
	pipe := idx.rdb.TxPipeline()
	pipe.ZRem(ctx, zoomKey(z), id)
	pipe.HDel(ctx, sizeKey(z), id)
	_, err := pipe.Exec(ctx)
	return err
}

// ErrUncachedZoom is returned by Query when z is outside [zmin, zmax].
var ErrUncachedZoom = errors.New("uncached zoom")
