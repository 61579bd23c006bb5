package mapdata

import (
	"context"
	"log"
	"time"

	"github.com/nearmap/server/internal/clock"
	"github.com/nearmap/server/internal/metrics"
)

// Reconcile implements spec.md §4.E's nightly reconciliation job: delete
// every expired post, flush the cluster index, then stream all remaining
// posts and re-insert each into the cluster index. Running it twice in
// succession converges to the same cluster state because each run flushes
// the index and rebuilds it from the store alone; clusterindex.Insert by
// itself is not idempotent (re-inserting an id adds to its cluster again).
func (s *Service) Reconcile(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	deleted, err := s.store.DeleteExpiredPosts(ctx, clock.Today())
	if err != nil {
		return err
	}
	log.Printf("mapdata: reconcile deleted %d expired posts", deleted)

	if err := s.cluster.Flush(ctx); err != nil {
		return err
	}

	posts, err := s.store.AllPosts(ctx)
	if err != nil {
		return err
	}

	for _, p := range posts {
		if err := s.cluster.Insert(ctx, p.ID, p.X, p.Y, p.Blurb); err != nil {
			log.Printf("mapdata: reconcile insert %s failed: %v", p.ID, err)
		}
	}
	log.Printf("mapdata: reconcile re-inserted %d posts", len(posts))
	return nil
}
