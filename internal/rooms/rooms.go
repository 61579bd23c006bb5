// Package rooms is the room registry & fan-out component (spec.md §4.F):
// a named-room subscriber registry over tile cells, grounded on
// internal/websocket/hub.go's channelClients registry/locking discipline,
// generalized from a single free-form channel id to the spec's
// `{layer} : {sw_x} : {sw_y}` tile room key and quadtree-descent broadcast.
package rooms

import (
	"strconv"
	"sync"

	"github.com/nearmap/server/internal/geo"
)

// Client is anything a session can be broadcast to. internal/session's
// connection wraps a websocket and implements this.
type Client interface {
	ID() string
	Send(data []byte)
}

// Registry holds, per room name, the set of subscribed clients, and per
// client, the set of rooms it has joined (so a view-shift can leave all
// previously joined rooms in one call).
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[Client]bool
	members map[Client]map[string]bool
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		rooms:   make(map[string]map[Client]bool),
		members: make(map[Client]map[string]bool),
	}
}

// RoomName implements spec.md §4.F's room naming: `{L} : {sw_x} : {sw_y}`
// with sw coordinates rounded to 5 decimals, ported from
// original_source/src/socket.rs::room_name.
func RoomName(layer int, sw geo.Point) string {
	return strconv.Itoa(layer) + " : " + formatCoord(geo.RoundTo5(sw.X)) + " : " + formatCoord(geo.RoundTo5(sw.Y))
}

func formatCoord(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// JoinRooms implements spec.md §4.F join_rooms(session, L, aligned_rect):
// leaves every room the client previously joined, then joins every tile
// room the aligned rect intersects at layer L. aligned_rect is assumed
// pre-aligned (its width/height are exact multiples of the layer's tile
// size), matching the client-side contract the spec describes.
func (r *Registry) JoinRooms(c Client, layer int, rect geo.Rect) {
	r.LeaveAll(c)
	r.JoinTiles(c, layer, rect)
}

// JoinTiles joins every tile room rect intersects at layer, without
// leaving any previously joined room first. view-shift's two-rect form
// (spec.md §4.G) leaves all rooms once up front, then calls this once per
// supplied rect, so a session can straddle the antimeridian split as two
// rects without losing the first rect's rooms.
func (r *Registry) JoinTiles(c Client, layer int, rect geo.Rect) {
	tileSize := geo.TileSize(layer)
	width := int((rect.Right-rect.Left)/tileSize + 0.5)
	height := int((rect.Top-rect.Bottom)/tileSize + 0.5)

	r.mu.Lock()
	defer r.mu.Unlock()

	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			sw := geo.Point{X: rect.Left + float64(x)*tileSize, Y: rect.Bottom + float64(y)*tileSize}
			r.joinLocked(c, RoomName(layer, sw))
		}
	}
}

func (r *Registry) joinLocked(c Client, room string) {
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[Client]bool)
	}
	r.rooms[room][c] = true

	if r.members[c] == nil {
		r.members[c] = make(map[string]bool)
	}
	r.members[c][room] = true
}

// LeaveAll removes a client from every room it had joined. Called on
// view-shift (before joining the new set) and on disconnect.
func (r *Registry) LeaveAll(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveAllLocked(c)
}

func (r *Registry) leaveAllLocked(c Client) {
	for room := range r.members[c] {
		if clients, ok := r.rooms[room]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.members, c)
}
