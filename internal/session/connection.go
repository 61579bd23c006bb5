package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nearmap/server/internal/apperr"
	"github.com/nearmap/server/internal/auth"
	"github.com/nearmap/server/internal/metrics"
)

// Keepalive/framing tuning, carried over from
// internal/websocket/client.go unchanged.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is permissive (spec.md §6); origin checking is left to a
	// front-door proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connState records only whether the connection is open (Connected) or
// closed (Disconnected). The Guest/Resident and Online steps of spec.md
// §4.G's state machine are carried by conn's uid, username and online
// fields, which are independent of each other (a resident can be online or
// not).
type connState int

const (
	stateConnected connState = iota
	stateDisconnected
)

// conn is one WebSocket connection's session state. Every field below is
// touched only from this connection's own readPump goroutine, so none of
// it needs a mutex — the only cross-goroutine traffic is the send
// channel, which is safe by construction.
type conn struct {
	id       string // random per-connection id, used as the rooms.Client key and as the socket_id in onlineindex
	ws       *websocket.Conn
	send     chan []byte
	srv      *Server
	state    connState
	uid      string // set once Guest or Resident; empty before then
	username string // non-empty once Resident
	online   bool   // true once entered world (an online-user index entry exists)

	currentEvent string // event name of the request currently being handled, for ack metrics
}

// ID implements rooms.Client.
func (c *conn) ID() string { return c.id }

// Send implements rooms.Client: enqueues a push frame, dropping it and
// logging if the connection's outbound buffer is full rather than
// blocking the broadcaster.
func (c *conn) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("session: send buffer full, dropping frame for %s", c.id)
	}
}

func (c *conn) readPump() {
	defer func() {
		c.srv.handleDisconnect(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("session: read error on %s: %v", c.id, err)
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one inbound envelope and routes it to its handler,
// matching spec.md §4.G's event table. Handler panics are not recovered:
// a malformed handler is a programming error, not a client input error
// (input validation happens inside each handler).
func (c *conn) dispatch(raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("session: malformed envelope from %s: %v", c.id, err)
		return
	}

	h, ok := handlers[in.Event]
	if !ok {
		c.currentEvent = in.Event
		c.ackStatus(in.Ack, 422, nil)
		return
	}

	start := time.Now()
	c.currentEvent = in.Event
	h(c, in)
	metrics.ObserveEvent(in.Event, start)
}

// ack sends a reply envelope for a request event that produced a payload.
func (c *conn) ack(ackID string, status int, data interface{}) {
	if ackID == "" {
		return
	}
	out, err := json.Marshal(outboundAck{Ack: ackID, Status: status, Data: data})
	if err != nil {
		log.Printf("session: marshal ack: %v", err)
		return
	}
	metrics.ObserveAck(c.currentEvent, status)
	c.Send(out)
}

// ackStatus forwards to ack; call sites use it for status-only replies and
// pass a nil payload.
func (c *conn) ackStatus(ackID string, status int, data interface{}) {
	c.ack(ackID, status, data)
}

// ackErr sends the ack status corresponding to err (spec.md §7), or 200
// with data if err is nil. A missing auth token acks 401 like an invalid
// one, even though auth.Verify distinguishes the two internally.
func (c *conn) ackErr(ackID string, err error, data interface{}) {
	if errors.Is(err, auth.ErrNoAuthHeader) {
		err = apperr.ErrUnauthorized
	}
	c.ack(ackID, apperr.StatusCode(err), data)
}
