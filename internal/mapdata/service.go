package mapdata

import (
	"context"
	"log"

	"github.com/nearmap/server/internal/apperr"
	"github.com/nearmap/server/internal/clusterindex"
	"github.com/nearmap/server/internal/geo"
	"github.com/nearmap/server/internal/onlineindex"
	"github.com/nearmap/server/internal/store"
)

// PostView is a post marker as returned to a viewport query: either a
// cluster (size > 1, no blurb) or a single (size == 1, blurb present).
type PostView struct {
	ID       string
	X, Y     float64
	Size     int
	Blurb    string
	HasBlurb bool
}

// Service is the map data service (spec.md §4.E): composes the cluster
// index, online-user index and document store into viewport resolution,
// owns write-path ordering and nightly reconciliation.
type Service struct {
	cluster *clusterindex.Index
	online  *onlineindex.Index
	store   *store.Store
	zmin    int
	zmax    int
}

// New builds a Service. zmin/zmax must match the Index passed in (spec.md
// default 3, 5).
func New(cluster *clusterindex.Index, online *onlineindex.Index, st *store.Store, zmin, zmax int) *Service {
	return &Service{cluster: cluster, online: online, store: st, zmin: zmin, zmax: zmax}
}

// Viewport implements spec.md §4.E's read path: zoom is validated against
// the global range (spec.md §3, geo.MinZoomLevel..geo.MaxZoomLevel), not
// the cluster index's cache bound [zmin,zmax]. At a cached zoom it asks
// the cluster index; on any cluster-index error (uncached zoom or a real
// read failure) it falls through to the store instead of surfacing the
// error, per spec.md §7: cache errors on the read path fall through to a
// correct, possibly slower, result.
func (s *Service) Viewport(ctx context.Context, z int, rect geo.Rect) ([]PostView, error) {
	if z < geo.MinZoomLevel || z > geo.MaxZoomLevel {
		return nil, apperr.ErrUnprocessable
	}

	if z >= s.zmin && z <= s.zmax {
		clusters, err := s.cluster.Query(ctx, z, rect)
		if err == nil {
			return fromClusters(clusters), nil
		}
		log.Printf("mapdata: cluster query z=%d falling back to store: %v", z, err)
	}

	return s.fallbackViewport(ctx, z, rect)
}

// fallbackViewport implements the store-backed branch of spec.md §4.E's
// read path: geoquery_posts against the document store, then in-process
// grid clustering for every zoom below the global max (raw points only at
// geo.MaxZoomLevel), matching db.geoquery_post_pts.
func (s *Service) fallbackViewport(ctx context.Context, z int, rect geo.Rect) ([]PostView, error) {
	pois, err := s.store.GeoqueryPosts(ctx, rect)
	if err != nil {
		return nil, err
	}

	pts := make([]weightedPoint, len(pois))
	for i, p := range pois {
		pts[i] = weightedPoint{id: p.ID, x: p.X, y: p.Y, size: 1, blurb: p.Blurb, hasBlurb: true}
	}

	if z >= geo.MaxZoomLevel {
		return fromWeightedPoints(pts), nil
	}

	radius := geo.ClusterRadiusDegrees(z)
	clustered := gridCluster(pts, radius)
	return fromWeightedPoints(clustered), nil
}

// Users implements the users half of a viewport query (spec.md §4.G
// view-shift): a BYBOX query against the online-user index, never
// falling back, since the online-user index has no uncached-zoom
// concept.
func (s *Service) Users(ctx context.Context, rect geo.Rect) ([]onlineindex.UserPOI, error) {
	return s.online.QueryUsers(ctx, rect)
}

func fromClusters(clusters []clusterindex.Cluster) []PostView {
	out := make([]PostView, len(clusters))
	for i, c := range clusters {
		out[i] = PostView{ID: c.ID, X: c.X, Y: c.Y, Size: c.Size, Blurb: c.Blurb, HasBlurb: c.HasBlurb}
	}
	return out
}

func fromWeightedPoints(pts []weightedPoint) []PostView {
	out := make([]PostView, len(pts))
	for i, p := range pts {
		out[i] = PostView{ID: p.id, X: p.x, Y: p.y, Size: p.sizeOrOne(), Blurb: p.blurb, HasBlurb: p.hasBlurb}
	}
	return out
}

// CreatePost implements spec.md §4.E's write-path ordering for post
// creation: store write first, then cluster-index insert. A cluster-index
// failure is returned to the caller (with the new id) but does not roll
// back the store write; nightly reconciliation heals the index.
func (s *Service) CreatePost(ctx context.Context, authorID string, pos geo.Point, body string) (id string, err error) {
	id, blurb, err := s.store.InsertPost(ctx, authorID, pos, body)
	if err != nil {
		return "", err
	}
	if err := s.cluster.Insert(ctx, id, pos.X, pos.Y, blurb); err != nil {
		return id, err
	}
	return id, nil
}

// DeletePost implements spec.md §4.E's write-path ordering for post
// deletion: cluster-index delete first (so stale clusters stop being
// served immediately), then store delete.
func (s *Service) DeletePost(ctx context.Context, id string) error {
	if err := s.cluster.Delete(ctx, id); err != nil {
		return err
	}
	return s.store.DeletePost(ctx, id)
}
