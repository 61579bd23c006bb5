package rooms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearmap/server/internal/geo"
)

type fakeClient struct {
	id  string
	got [][]byte
}

func (f *fakeClient) ID() string        { return f.id }
func (f *fakeClient) Send(data []byte)  { f.got = append(f.got, data) }

func alignedRect(layer int, sw geo.Point, tilesWide, tilesHigh int) geo.Rect {
	tileSize := geo.TileSize(layer)
	return geo.Rect{
		Left:   sw.X,
		Bottom: sw.Y,
		Right:  sw.X + float64(tilesWide)*tileSize,
		Top:    sw.Y + float64(tilesHigh)*tileSize,
	}
}

// TestViewShiftFanOut covers spec.md §8 scenario 4: S1 joins tiles
// covering lat [0,10] lon [0,10] at L=4; S2 posts at (5,5); S1 receives
// the event; S3 covering (50,50) receives nothing.
func TestViewShiftFanOut(t *testing.T) {
	reg := New()
	s1 := &fakeClient{id: "s1"}
	s2 := &fakeClient{id: "s2"}
	s3 := &fakeClient{id: "s3"}

	const layer = 4
	sw1 := geo.CellSW(geo.Point{X: 0, Y: 0}, layer)
	rect1 := alignedRect(layer, sw1, 4, 4) // 4x4 tiles of 22.5 degrees: [0,90)x[0,90)
	reg.JoinRooms(s1, layer, rect1)

	sw3 := geo.CellSW(geo.Point{X: 50, Y: 50}, layer)
	rect3 := alignedRect(layer, sw3, 1, 1)
	reg.JoinRooms(s3, layer, rect3)

	reg.BroadcastAt(s2, geo.Point{X: 5, Y: 5}, "new-post", true, map[string]string{"id": "p1"})

	require.Len(t, s1.got, 1)
	var payload event
	require.NoError(t, json.Unmarshal(s1.got[0], &payload))
	assert.Equal(t, "new-post", payload.Event)
	assert.Empty(t, s3.got)
}

// TestMoveStraddlesBoundary covers spec.md §8 scenario 5: U moves from
// (0,0) to (33.75,0), the middle of the next tile east, crossing a tile
// boundary at L=4. The session covering
// only the old tile gets one user-move, the session covering only the
// new tile gets one user-move, and the mover itself gets none.
func TestMoveStraddlesBoundary(t *testing.T) {
	reg := New()
	mover := &fakeClient{id: "mover"}
	watcherOld := &fakeClient{id: "watcher-old"}
	watcherNew := &fakeClient{id: "watcher-new"}

	const layer = 4
	tileSize := geo.TileSize(layer)

	oldSW := geo.CellSW(geo.Point{X: 0, Y: 0}, layer)
	reg.JoinRooms(watcherOld, layer, alignedRect(layer, oldSW, 1, 1))

	newPt := geo.Point{X: oldSW.X + tileSize + tileSize/2, Y: 0}
	newSW := geo.CellSW(newPt, layer)
	require.NotEqual(t, oldSW, newSW, "test points must straddle a tile boundary")
	reg.JoinRooms(watcherNew, layer, alignedRect(layer, newSW, 1, 1))

	oldPos := geo.Point{X: 0, Y: 0}
	reg.BroadcastAtMultiple(mover, []geo.Point{oldPos, newPt}, "user-move", false, map[string]string{"uid": "u1"})

	assert.Len(t, watcherOld.got, 1)
	assert.Len(t, watcherNew.got, 1)
	assert.Empty(t, mover.got)
}

func TestJoinRoomsLeavesPreviousRooms(t *testing.T) {
	reg := New()
	c := &fakeClient{id: "c"}

	const layer = 4
	sw := geo.CellSW(geo.Point{X: 0, Y: 0}, layer)
	reg.JoinRooms(c, layer, alignedRect(layer, sw, 1, 1))
	assert.Len(t, reg.members[c], 1)

	sw2 := geo.CellSW(geo.Point{X: 100, Y: 100}, layer)
	reg.JoinRooms(c, layer, alignedRect(layer, sw2, 1, 1))
	assert.Len(t, reg.members[c], 1)

	origin := &fakeClient{id: "origin"}
	reg.BroadcastAt(origin, geo.Point{X: 0, Y: 0}, "new-post", true, nil)
	assert.Empty(t, c.got, "client must not receive events for a room it already left")
}
