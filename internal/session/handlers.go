package session

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nearmap/server/internal/apperr"
	"github.com/nearmap/server/internal/geo"
	"github.com/nearmap/server/internal/mapdata"
	"github.com/nearmap/server/internal/onlineindex"
	"github.com/nearmap/server/internal/store"
)

// requestTimeout bounds every store/cache round-trip a single event
// handler makes, matching spec.md §5's guidance to cap the wait on a
// slow dependency rather than block the connection indefinitely.
const requestTimeout = 5 * time.Second

func reqCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// handlers is the dispatch table of spec.md §4.G's request events.
var handlers = map[string]func(*conn, inbound){
	"enter-world-as-guest": handleEnterWorldAsGuest,
	"sign-up":              handleSignUp,
	"sign-up-from-guest":   handleSignUpFromGuest,
	"sign-in":              handleSignIn,
	"sign-in-from-jwt":     handleSignInFromJWT,
	"enter-world":          handleEnterWorld,
	"exit-world":           handleExitWorld,
	"view-shift":           handleViewShift,
	"move":                 handleMove,
	"edit-user":            handleEditUser,
	"post":                 handlePost,
	"delete-post":          handleDeletePost,
	"chat":                 handleChat,
}

func (c *conn) decode(in inbound, v interface{}) bool {
	if len(in.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		c.ackStatus(in.Ack, 422, nil)
		return false
	}
	return true
}

// Push payload shapes, matching spec.md §4.G's push events table
// verbatim.

type userEnterPush struct {
	ID       string `json:"id"`
	Pos      pos2   `json:"pos"`
	Avatar   int    `json:"avatar"`
	Username string `json:"username,omitempty"`
}

type userLeavePush struct {
	ID string `json:"id"`
}

type userMovePush struct {
	ID  string `json:"id"`
	Pos pos2   `json:"pos"`
}

type userUpdatePush struct {
	ID       string  `json:"id"`
	Avatar   *int    `json:"avatar,omitempty"`
	Username *string `json:"username,omitempty"`
}

type newPostPush struct {
	ID    string `json:"id"`
	Pos   pos2   `json:"pos"`
	Blurb string `json:"blurb"`
}

type chatPush struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
}

// blurbOf mirrors store's blurb truncation (spec.md §3 "Cluster"): the
// first 25 code points of a post body. Duplicated here rather than
// exported from internal/store, since it's the push payload's concern,
// not the store's.
func blurbOf(body string) string {
	runes := []rune(body)
	if len(runes) <= 25 {
		return body
	}
	return string(runes[:25])
}

// enterWorldOnline implements the shared second half of
// enter-world-as-guest / sign-up(pos) / sign-in(pos) /
// sign-in-from-jwt(pos) / enter-world: add to the online index and
// broadcast user-enter.
func (c *conn) enterWorldOnline(ctx context.Context, uid string, pos geo.Point, avatar int, username string) error {
	if err := c.srv.Online.Add(ctx, uid, c.id, pos.X, pos.Y, avatar, username); err != nil {
		return apperr.ErrServer
	}
	c.uid = uid
	c.username = username
	c.online = true
	c.srv.Rooms.BroadcastAt(c, pos, "user-enter", false, userEnterPush{ID: uid, Pos: fromPoint(pos), Avatar: avatar, Username: username})
	return nil
}

func handleEnterWorldAsGuest(c *conn, in inbound) {
	var req enterWorldAsGuestReq
	if !c.decode(in, &req) {
		return
	}

	uid, err := store.GenID()
	if err != nil {
		c.ackErr(in.Ack, apperr.ErrServer, nil)
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	if err := c.enterWorldOnline(ctx, uid, req.Pos.point(), req.Avatar, ""); err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	token, err := c.srv.Auth.Mint(uid)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	c.ack(in.Ack, 200, token)
}

func handleSignUp(c *conn, in inbound) {
	var req signUpReq
	if !c.decode(in, &req) {
		return
	}

	uid, err := store.GenID()
	if err != nil {
		c.ackErr(in.Ack, apperr.ErrServer, nil)
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	if err := c.srv.Store.InsertUser(ctx, uid, req.Username, req.Password, req.Avatar); err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	token, err := c.srv.Auth.Mint(uid)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	if req.Pos != nil {
		if err := c.enterWorldOnline(ctx, uid, req.Pos.point(), req.Avatar, req.Username); err != nil {
			log.Printf("session: sign-up enter-world for %s: %v", uid, err)
		}
	}

	c.ack(in.Ack, 200, token)
}

func handleSignUpFromGuest(c *conn, in inbound) {
	var req signUpFromGuestReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.GuestToken)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	guestUID := claims.UID

	ctx, cancel := reqCtx()
	defer cancel()

	poi, ok, err := c.srv.Online.Get(ctx, guestUID)
	if err != nil {
		c.ackErr(in.Ack, apperr.ErrServer, nil)
		return
	}
	if !ok {
		c.ackErr(in.Ack, apperr.ErrNotFound, nil)
		return
	}

	if err := c.srv.Store.InsertUser(ctx, guestUID, req.Username, req.Password, poi.Avatar); err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	if err := c.srv.Online.Edit(ctx, guestUID, nil, &req.Username); err != nil {
		log.Printf("session: sign-up-from-guest online edit %s: %v", guestUID, err)
	}
	c.uid = guestUID
	c.username = req.Username

	c.srv.Rooms.BroadcastAt(c, geo.Point{X: poi.X, Y: poi.Y}, "user-update", false, userUpdatePush{ID: guestUID, Username: &req.Username})
	c.ack(in.Ack, 200, nil)
}

func handleSignIn(c *conn, in inbound) {
	var req signInReq
	if !c.decode(in, &req) {
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	user, err := c.srv.Store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	if !store.VerifyPassword(user.Hash, req.Password) {
		c.ackErr(in.Ack, apperr.ErrUnauthorized, nil)
		return
	}

	if req.GuestToken != "" {
		if guestClaims, err := c.srv.Auth.Verify(req.GuestToken); err == nil {
			if poi, ok, err := c.srv.Online.Get(ctx, guestClaims.UID); err == nil && ok {
				if err := c.srv.Online.Remove(ctx, guestClaims.UID, c.id); err != nil {
					log.Printf("session: sign-in guest teardown %s: %v", guestClaims.UID, err)
				}
				c.srv.Rooms.BroadcastAt(c, geo.Point{X: poi.X, Y: poi.Y}, "user-leave", false, userLeavePush{ID: guestClaims.UID})
			}
		}
	}

	token, err := c.srv.Auth.Mint(user.ID)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	if req.Pos != nil {
		if err := c.enterWorldOnline(ctx, user.ID, req.Pos.point(), user.Avatar, user.Username); err != nil {
			log.Printf("session: sign-in enter-world for %s: %v", user.ID, err)
		}
	}

	c.ack(in.Ack, 200, map[string]interface{}{"token": token, "avatar": user.Avatar})
}

func handleSignInFromJWT(c *conn, in inbound) {
	var req signInFromJWTReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.Token)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	user, err := c.srv.Store.GetUser(ctx, claims.UID)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	if req.Pos != nil {
		if err := c.enterWorldOnline(ctx, user.ID, req.Pos.point(), user.Avatar, user.Username); err != nil {
			log.Printf("session: sign-in-from-jwt enter-world for %s: %v", user.ID, err)
		}
	}

	c.ack(in.Ack, 200, map[string]interface{}{"avatar": user.Avatar, "username": user.Username})
}

func handleEnterWorld(c *conn, in inbound) {
	var req enterWorldReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.Token)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	user, err := c.srv.Store.GetUser(ctx, claims.UID)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	if err := c.enterWorldOnline(ctx, user.ID, req.Pos.point(), user.Avatar, user.Username); err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	c.ack(in.Ack, 200, nil)
}

func handleExitWorld(c *conn, in inbound) {
	var req exitWorldReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.Token)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	uid := claims.UID

	ctx, cancel := reqCtx()
	defer cancel()

	poi, ok, err := c.srv.Online.Get(ctx, uid)
	if err != nil {
		c.ackErr(in.Ack, apperr.ErrServer, nil)
		return
	}
	if err := c.srv.Online.Remove(ctx, uid, c.id); err != nil {
		c.ackErr(in.Ack, apperr.ErrServer, nil)
		return
	}

	if req.DeleteAccount {
		if err := c.srv.Store.DeleteUser(ctx, uid); err != nil {
			log.Printf("session: exit-world delete account %s: %v", uid, err)
		}
	}

	if ok {
		c.srv.Rooms.BroadcastAt(c, geo.Point{X: poi.X, Y: poi.Y}, "user-leave", false, userLeavePush{ID: uid})
	}

	if req.StayOnline && ok {
		guestUID, err := store.GenID()
		if err != nil {
			c.ackErr(in.Ack, apperr.ErrServer, nil)
			return
		}
		if err := c.enterWorldOnline(ctx, guestUID, geo.Point{X: poi.X, Y: poi.Y}, poi.Avatar, ""); err != nil {
			c.ackErr(in.Ack, err, nil)
			return
		}
		token, err := c.srv.Auth.Mint(guestUID)
		if err != nil {
			c.ackErr(in.Ack, err, nil)
			return
		}
		c.ack(in.Ack, 200, token)
		return
	}

	c.uid = ""
	c.username = ""
	c.online = false
	c.ack(in.Ack, 200, nil)
}

type clusterWire struct {
	ID    string `json:"id"`
	Pos   pos2   `json:"pos"`
	Size  int    `json:"size,omitempty"`
	Blurb string `json:"blurb,omitempty"`
}

type userWire struct {
	ID       string `json:"id"`
	Pos      pos2   `json:"pos"`
	Avatar   int    `json:"avatar"`
	Username string `json:"username,omitempty"`
}

type viewShiftResp struct {
	Posts []clusterWire `json:"posts"`
	Users []userWire    `json:"users"`
}

func handleViewShift(c *conn, in inbound) {
	var req viewShiftReq
	if !c.decode(in, &req) {
		return
	}

	if req.Zoom < geo.MinZoomLevel || req.Zoom > geo.MaxZoomLevel {
		c.ackStatus(in.Ack, 422, nil)
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	c.srv.Rooms.LeaveAll(c)

	resp := viewShiftResp{Posts: []clusterWire{}, Users: []userWire{}}
	for _, wr := range req.View {
		if wr == nil {
			continue
		}
		rect := wr.rect()
		if !geo.RectValidAsView(rect) {
			c.ackStatus(in.Ack, 422, nil)
			return
		}

		c.srv.Rooms.JoinTiles(c, req.TileLayer, rect)

		if posts, err := c.srv.Map.Viewport(ctx, req.Zoom, rect); err == nil {
			resp.Posts = append(resp.Posts, toClusterWire(posts)...)
		} else {
			log.Printf("session: view-shift viewport query: %v", err)
		}

		if users, err := c.srv.Map.Users(ctx, rect); err == nil {
			resp.Users = append(resp.Users, toUserWire(users, req.UID)...)
		} else {
			log.Printf("session: view-shift users query: %v", err)
		}
	}

	c.ack(in.Ack, 200, resp)
}

func toClusterWire(posts []mapdata.PostView) []clusterWire {
	out := make([]clusterWire, len(posts))
	for i, p := range posts {
		out[i] = clusterWire{ID: p.ID, Pos: pos2{p.X, p.Y}, Size: p.Size, Blurb: p.Blurb}
	}
	return out
}

// toUserWire projects online users to the wire shape, excluding excludeUID
// (spec.md §4.G view-shift: "filter out uid from returned users").
func toUserWire(users []onlineindex.UserPOI, excludeUID string) []userWire {
	out := make([]userWire, 0, len(users))
	for _, u := range users {
		if u.UID == excludeUID {
			continue
		}
		out = append(out, userWire{ID: u.UID, Pos: pos2{u.X, u.Y}, Avatar: u.Avatar, Username: u.Username})
	}
	return out
}

func handleMove(c *conn, in inbound) {
	var req moveReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.Token)
	if err != nil {
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	prev, err := c.srv.Online.Move(ctx, claims.UID, req.Pos[0], req.Pos[1])
	if err != nil {
		log.Printf("session: move %s: %v", claims.UID, err)
		return
	}

	c.srv.Rooms.BroadcastAtMultiple(c, []geo.Point{prev, req.Pos.point()}, "user-move", false, userMovePush{ID: claims.UID, Pos: req.Pos})
}

func handleEditUser(c *conn, in inbound) {
	var req editUserReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.Token)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	if err := c.srv.Store.EditUser(ctx, claims.UID, req.Avatar, req.Username); err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	if err := c.srv.Online.Edit(ctx, claims.UID, req.Avatar, req.Username); err != nil {
		log.Printf("session: edit-user online edit %s: %v", claims.UID, err)
	}
	if req.Username != nil {
		c.username = *req.Username
	}

	if poi, ok, err := c.srv.Online.Get(ctx, claims.UID); err == nil && ok {
		c.srv.Rooms.BroadcastAt(c, geo.Point{X: poi.X, Y: poi.Y}, "user-update", false, userUpdatePush{ID: claims.UID, Avatar: req.Avatar, Username: req.Username})
	}

	c.ack(in.Ack, 200, nil)
}

func handlePost(c *conn, in inbound) {
	var req postReq
	if !c.decode(in, &req) {
		return
	}

	var authorID string
	if req.Token != "" {
		if claims, err := c.srv.Auth.Verify(req.Token); err == nil {
			authorID = claims.UID
		}
	}

	ctx, cancel := reqCtx()
	defer cancel()

	id, err := c.srv.Map.CreatePost(ctx, authorID, req.Pos.point(), req.Body)
	if err != nil {
		log.Printf("session: post create: %v", err)
		return
	}

	c.srv.Rooms.BroadcastAt(c, req.Pos.point(), "new-post", true, newPostPush{ID: id, Pos: req.Pos, Blurb: blurbOf(req.Body)})
}

func handleDeletePost(c *conn, in inbound) {
	var req deletePostReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.Token)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	ctx, cancel := reqCtx()
	defer cancel()

	post, err := c.srv.Store.GetPost(ctx, req.PostID)
	if err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}
	if post.AuthorID != claims.UID {
		c.ackErr(in.Ack, apperr.ErrUnauthorized, nil)
		return
	}

	if err := c.srv.Map.DeletePost(ctx, req.PostID); err != nil {
		c.ackErr(in.Ack, err, nil)
		return
	}

	c.srv.Rooms.BroadcastAt(c, geo.Point{X: post.X, Y: post.Y}, "post-delete", true, post.ID)
	c.ack(in.Ack, 200, nil)
}

func handleChat(c *conn, in inbound) {
	var req chatReq
	if !c.decode(in, &req) {
		return
	}

	claims, err := c.srv.Auth.Verify(req.Token)
	if err != nil {
		return
	}

	c.srv.Rooms.BroadcastAt(c, req.Pos.point(), "chat", false, chatPush{ID: claims.UID, Msg: req.Msg})
}
