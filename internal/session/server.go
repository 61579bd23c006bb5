package session

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nearmap/server/internal/auth"
	"github.com/nearmap/server/internal/geo"
	"github.com/nearmap/server/internal/mapdata"
	"github.com/nearmap/server/internal/metrics"
	"github.com/nearmap/server/internal/onlineindex"
	"github.com/nearmap/server/internal/rooms"
	"github.com/nearmap/server/internal/store"
)

// disconnectTimeout bounds the best-effort online-index cleanup spec.md
// §5 calls for on connection drop.
const disconnectTimeout = 5 * time.Second

// Server holds every dependency a connection's handlers need: the
// document store, the map data service, the online-user index, the room
// registry, and the token signer.
type Server struct {
	Auth   *auth.Signer
	Store  *store.Store
	Map    *mapdata.Service
	Online *onlineindex.Index
	Rooms  *rooms.Registry
}

// New builds a Server over its already-constructed dependencies.
func New(signer *auth.Signer, st *store.Store, mapSvc *mapdata.Service, online *onlineindex.Index, roomReg *rooms.Registry) *Server {
	return &Server{Auth: signer, Store: st, Map: mapSvc, Online: online, Rooms: roomReg}
}

// HandleWS upgrades an HTTP request to a WebSocket and runs the
// connection's read/write pumps, grounded on
// internal/websocket/client.go's HandleConnection.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("session: upgrade failed: %v", err)
		return
	}

	c := &conn{
		id:    uuid.NewString(),
		ws:    ws,
		send:  make(chan []byte, sendBufferSize),
		srv:   s,
		state: stateConnected,
	}

	metrics.ConnectionsActive.Inc()
	go c.writePump()
	go c.readPump()
}

// handleDisconnect implements spec.md §4.G's `disconnect` row: if this
// socket mapped to an online uid, remove it from the online index and
// broadcast user-leave. The uid is resolved via the online index's own
// socket map (spec.md §4.C lookup_by_socket), not the connection's
// in-memory state, so disconnect cleanup is correct even if the two ever
// disagree. Best-effort per spec.md §5's cancellation rules.
func (s *Server) handleDisconnect(c *conn) {
	metrics.ConnectionsActive.Dec()
	c.state = stateDisconnected
	c.srv.Rooms.LeaveAll(c)
	defer close(c.send)

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	uid, ok, err := s.Online.LookupBySocket(ctx, c.id)
	if err != nil {
		log.Printf("session: disconnect lookup socket %s: %v", c.id, err)
		return
	}
	if !ok {
		return
	}

	poi, ok, err := s.Online.Get(ctx, uid)
	if err != nil {
		log.Printf("session: disconnect lookup %s: %v", uid, err)
	}

	if err := s.Online.Remove(ctx, uid, c.id); err != nil {
		log.Printf("session: disconnect remove %s: %v", uid, err)
		return
	}
	if !ok {
		return
	}
	s.Rooms.BroadcastAt(c, geo.Point{X: poi.X, Y: poi.Y}, "user-leave", false, map[string]string{"id": uid})
}
