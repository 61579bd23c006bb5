package mapdata

import (
	"context"
	"log"
	"time"
)

// RunScheduler blocks, running Reconcile once per day at hourOfDay
// (0-23), until ctx is cancelled. Grounded on the goroutine-plus-signal
// shutdown pattern cmd/nearmap-server/main.go uses for the HTTP server:
// callers start this in its own goroutine and cancel ctx on shutdown.
func (s *Service) RunScheduler(ctx context.Context, hourOfDay int) {
	for {
		wait := untilNextHour(time.Now(), hourOfDay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := s.Reconcile(ctx); err != nil {
			log.Printf("mapdata: nightly reconcile failed: %v", err)
		}
	}
}

func untilNextHour(now time.Time, hourOfDay int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hourOfDay, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
