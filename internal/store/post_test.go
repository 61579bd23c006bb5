//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearmap/server/internal/clock"
	"github.com/nearmap/server/internal/geo"
)

func TestExpiryFormula(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, blurb, err := s.InsertPost(ctx, "", geo.Point{X: 1, Y: 2}, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", blurb)

	post, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, clock.Today()+7, post.Expiry)
}

func TestInsertThenQueryBlurb(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	longBody := "this message body is definitely longer than twenty five code points for sure"
	_, blurb, err := s.InsertPost(ctx, "", geo.Point{X: 5, Y: 5}, longBody)
	require.NoError(t, err)
	assert.Equal(t, []rune(longBody)[:25], []rune(blurb))

	pois, err := s.GeoqueryPosts(ctx, geo.Rect{Top: 10, Bottom: 0, Left: 0, Right: 10})
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, blurb, pois[0].Blurb)
}

func TestDeletePostPurgesVotes(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, _, err := s.InsertPost(ctx, "", geo.Point{X: 0, Y: 0}, "P")
	require.NoError(t, err)

	require.NoError(t, s.InsertUser(ctx, "u1", "user-one", "hunter2", 0))
	require.NoError(t, s.InsertUser(ctx, "u2", "user-two", "hunter2", 0))
	require.NoError(t, s.SetVote(ctx, "u1", id, VoteLike))
	require.NoError(t, s.SetVote(ctx, "u2", id, VoteLike))

	require.NoError(t, s.DeletePost(ctx, id))

	k1, err := s.GetVote(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, VoteNone, k1)

	k2, err := s.GetVote(ctx, "u2", id)
	require.NoError(t, err)
	assert.Equal(t, VoteNone, k2)

	var count int
	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM votes WHERE post_id = $1`, id).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIncrementViewBumpsExpiry(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, _, err := s.InsertPost(ctx, "", geo.Point{X: 0, Y: 0}, "P")
	require.NoError(t, err)

	before, err := s.GetPost(ctx, id)
	require.NoError(t, err)

	existed, err := s.IncrementView(ctx, id)
	require.NoError(t, err)
	assert.True(t, existed)

	after, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Views+1, after.Views)
	assert.Equal(t, before.Expiry+1, after.Expiry)
}
