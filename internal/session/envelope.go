// Package session is the per-connection session protocol (spec.md §4.G):
// request/ack dispatch plus server-push events over a long-lived
// WebSocket connection, grounded on internal/websocket/client.go's
// readPump/writePump pattern. gorilla/websocket has no built-in
// acknowledgement primitive (unlike the source's socketioxide), so this
// package adds one: every inbound envelope carries an optional `ack` id,
// and a reply envelope carrying the same id is sent back at most once
// (`move`, `post` and `chat` send none unless their payload fails to
// decode).
package session

import (
	"encoding/json"

	"github.com/nearmap/server/internal/geo"
)

// inbound is the wire shape of every client->server frame.
type inbound struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundAck is the reply to a request event: status follows spec.md §7
// (200/401/404/406/409/422/500); data is the event's ack payload, if any.
type outboundAck struct {
	Ack    string      `json:"ack"`
	Status int         `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// outboundEvent is a server-push frame (spec.md §4.G "Push events").
type outboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// pos2 is the wire shape of a coordinate: `[lon, lat]` (spec.md §6).
type pos2 [2]float64

func (p pos2) point() geo.Point { return geo.Point{X: p[0], Y: p[1]} }

func fromPoint(p geo.Point) pos2 { return pos2{p.X, p.Y} }

// wireRect matches original_source/src/area.rs's Rect field names and
// order exactly, so the wire JSON shape is unchanged from the source.
type wireRect struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

func (r wireRect) rect() geo.Rect {
	return geo.Rect{Top: r.Top, Bottom: r.Bottom, Left: r.Left, Right: r.Right}
}

// Request payloads, one struct per spec.md §4.G request event.

type enterWorldAsGuestReq struct {
	Pos    pos2 `json:"pos"`
	Avatar int  `json:"avatar"`
}

type signUpReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   int    `json:"avatar"`
	Pos      *pos2  `json:"pos"`
}

type signUpFromGuestReq struct {
	GuestToken string `json:"guest_token"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type signInReq struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Pos        *pos2  `json:"pos"`
	GuestToken string `json:"guest_token"`
}

type signInFromJWTReq struct {
	Token string `json:"token"`
	Pos   *pos2  `json:"pos"`
}

type enterWorldReq struct {
	Token string `json:"token"`
	Pos   pos2   `json:"pos"`
}

type exitWorldReq struct {
	Token         string `json:"token"`
	StayOnline    bool   `json:"stay_online"`
	DeleteAccount bool   `json:"delete_account"`
}

type viewShiftReq struct {
	UID       string       `json:"uid"`
	Zoom      int          `json:"zoom"`
	TileLayer int          `json:"tile_layer"`
	View      [2]*wireRect `json:"view"`
}

type moveReq struct {
	Token string `json:"token"`
	Pos   pos2   `json:"pos"`
}

type editUserReq struct {
	Token    string  `json:"token"`
	Avatar   *int    `json:"avatar"`
	Username *string `json:"username"`
}

type postReq struct {
	Token string `json:"token"`
	Pos   pos2   `json:"pos"`
	Body  string `json:"body"`
}

type deletePostReq struct {
	Token  string `json:"token"`
	PostID string `json:"post_id"`
}

type chatReq struct {
	Token string `json:"token"`
	Msg   string `json:"msg"`
	Pos   pos2   `json:"pos"`
}
