// Package onlineindex implements the geo-indexed set of live user
// positions described in spec.md §4.C: a single geo-set plus avatar/
// username/socket side-maps, backed by Redis.
package onlineindex

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/nearmap/server/internal/geo"
)

// ErrUserNotOnline is returned by Move when the uid has no current online
// entry (Edit treats an offline uid as a no-op and returns nil).
var ErrUserNotOnline = errors.New("user not online")

const (
	usersGeoKey = "users"
	avatarKey   = "avatar"
	usernameKey = "username"
)

func socketKey(socketID string) string { return "socket:" + socketID }

// Index is the online-user index. Zero value is not usable; build one with
// New.
type Index struct {
	rdb *redis.Client
}

// New builds an Index over rdb.
func New(rdb *redis.Client) *Index {
	return &Index{rdb: rdb}
}

// UserPOI is a point-of-interest projection of an online user, returned by
// QueryUsers.
type UserPOI struct {
	UID      string
	X, Y     float64
	Avatar   int
	Username string // empty for a guest
}

// Add implements spec.md §4.C add(uid, socket_id, x, y, avatar, username?):
// writes all four entries atomically in one pipelined batch.
func (idx *Index) Add(ctx context.Context, uid, socketID string, x, y float64, avatar int, username string) error {
	pipe := idx.rdb.TxPipeline()
	pipe.GeoAdd(ctx, usersGeoKey, &redis.GeoLocation{Name: uid, Longitude: x, Latitude: y})
	pipe.HSet(ctx, avatarKey, uid, avatar)
	if username != "" {
		pipe.HSet(ctx, usernameKey, uid, username)
	}
	pipe.Set(ctx, socketKey(socketID), uid, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// Move implements spec.md §4.C move(uid, x, y): requires the uid to already
// be online, and returns its previous coordinate.
func (idx *Index) Move(ctx context.Context, uid string, x, y float64) (prev geo.Point, err error) {
	exists, err := idx.rdb.HExists(ctx, avatarKey, uid).Result()
	if err != nil {
		return geo.Point{}, err
	}
	if !exists {
		return geo.Point{}, ErrUserNotOnline
	}

	pos, err := idx.rdb.GeoPos(ctx, usersGeoKey, uid).Result()
	if err != nil {
		return geo.Point{}, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return geo.Point{}, ErrUserNotOnline
	}
	prev = geo.Point{X: pos[0].Longitude, Y: pos[0].Latitude}

	if err := idx.rdb.GeoAdd(ctx, usersGeoKey, &redis.GeoLocation{Name: uid, Longitude: x, Latitude: y}).Err(); err != nil {
		return geo.Point{}, err
	}
	return prev, nil
}

// Edit implements spec.md §4.C edit(uid, avatar?, username?): a no-op
// unless uid is currently online; updates only the provided fields.
func (idx *Index) Edit(ctx context.Context, uid string, avatar *int, username *string) error {
	exists, err := idx.rdb.HExists(ctx, avatarKey, uid).Result()
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	pipe := idx.rdb.TxPipeline()
	if avatar != nil {
		pipe.HSet(ctx, avatarKey, uid, *avatar)
	}
	if username != nil {
		pipe.HSet(ctx, usernameKey, uid, *username)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Remove implements spec.md §4.C remove(uid, socket_id): removes all
// entries.
func (idx *Index) Remove(ctx context.Context, uid, socketID string) error {
	pipe := idx.rdb.TxPipeline()
	pipe.ZRem(ctx, usersGeoKey, uid)
	pipe.HDel(ctx, avatarKey, uid)
	pipe.HDel(ctx, usernameKey, uid)
	pipe.Del(ctx, socketKey(socketID))
	_, err := pipe.Exec(ctx)
	return err
}

// LookupBySocket implements spec.md §4.C lookup_by_socket(socket_id).
func (idx *Index) LookupBySocket(ctx context.Context, socketID string) (uid string, ok bool, err error) {
	uid, err = idx.rdb.Get(ctx, socketKey(socketID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return uid, true, nil
}

// QueryUsers implements spec.md §4.C query_users(rect): GEOSEARCH BYBOX
// WITHCOORD, then fetch avatar + username for each hit.
func (idx *Index) QueryUsers(ctx context.Context, rect geo.Rect) ([]UserPOI, error) {
	width, height := geo.HaversineBBoxDimensions(rect)
	centerX := (rect.Left + rect.Right) / 2
	centerY := (rect.Bottom + rect.Top) / 2

	q := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude: centerX,
			Latitude:  centerY,
			BoxWidth:  width,
			BoxHeight: height,
			BoxUnit:   "m",
		},
		WithCoord: true,
	}
	hits, err := idx.rdb.GeoSearchLocation(ctx, usersGeoKey, q).Result()
	if err != nil {
		return nil, err
	}

	out := make([]UserPOI, 0, len(hits))
	for _, h := range hits {
		avatarStr, err := idx.rdb.HGet(ctx, avatarKey, h.Name).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		avatar, _ := strconv.Atoi(avatarStr)
		username, err := idx.rdb.HGet(ctx, usernameKey, h.Name).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		out = append(out, UserPOI{
			UID:      h.Name,
			X:        h.Longitude,
			Y:        h.Latitude,
			Avatar:   avatar,
			Username: username,
		})
	}
	return out, nil
}

// Get returns a single online user's position, avatar and username. Used
// by sign-up-from-guest / sign-in / exit-world to read back a guest's
// current state before tearing it down or promoting it (the spec's
// `get_pos_and_avatar(uid)`).
func (idx *Index) Get(ctx context.Context, uid string) (UserPOI, bool, error) {
	pos, err := idx.rdb.GeoPos(ctx, usersGeoKey, uid).Result()
	if err != nil {
		return UserPOI{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return UserPOI{}, false, nil
	}

	avatarStr, err := idx.rdb.HGet(ctx, avatarKey, uid).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return UserPOI{}, false, err
	}
	avatar, _ := strconv.Atoi(avatarStr)

	username, err := idx.rdb.HGet(ctx, usernameKey, uid).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return UserPOI{}, false, err
	}

	return UserPOI{UID: uid, X: pos[0].Longitude, Y: pos[0].Latitude, Avatar: avatar, Username: username}, true, nil
}
