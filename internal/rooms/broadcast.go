package rooms

import (
	"encoding/json"
	"log"

	"github.com/nearmap/server/internal/geo"
	"github.com/nearmap/server/internal/metrics"
)

// event is the push-event envelope every broadcast server->client message
// shares (spec.md §4.G's push events table).
type event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// BroadcastAt implements spec.md §4.F's point broadcast: a point is
// covered by one room per tile layer 0..Lmax (a session only ever joins
// the single layer its own view-shift requested), so the broadcaster
// targets the union of rooms across every layer, ported from
// original_source/src/socket.rs::broadcast_at/broadcast_at_multiple's
// quadtree descent (expressed here via geo.CellSW per layer rather than
// the source's manual bisection — same result, since both compute the
// tile's SW corner at each layer).
func (r *Registry) BroadcastAt(origin Client, pos geo.Point, eventName string, includeSelf bool, payload interface{}) {
	r.BroadcastAtMultiple(origin, []geo.Point{pos}, eventName, includeSelf, payload)
}

// BroadcastAtMultiple implements the multi-point variant used by `move`
// (old position and new position): a client covering either point
// receives the event exactly once.
func (r *Registry) BroadcastAtMultiple(origin Client, pts []geo.Point, eventName string, includeSelf bool, payload interface{}) {
	data, err := json.Marshal(event{Event: eventName, Data: payload})
	if err != nil {
		log.Printf("rooms: marshal %s: %v", eventName, err)
		return
	}

	targets := r.targetsFor(pts)
	for c := range targets {
		if c == origin && !includeSelf {
			continue
		}
		c.Send(data)
		metrics.PushesTotal.WithLabelValues(eventName).Inc()
	}
}

func (r *Registry) targetsFor(pts []geo.Point) map[Client]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make(map[Client]bool)
	for _, pt := range pts {
		for layer := 0; layer <= geo.MaxTileLayer; layer++ {
			sw := geo.CellSW(pt, layer)
			room := RoomName(layer, sw)
			for c := range r.rooms[room] {
				targets[c] = true
			}
		}
	}
	return targets
}
