//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearmap/server/internal/geo"
)

func setupPostAndUser(t *testing.T, s *Store, ctx context.Context) (postID string) {
	t.Helper()
	require.NoError(t, s.InsertUser(ctx, "voter", "voter", "pw", 0))
	id, _, err := s.InsertPost(ctx, "", geo.Point{X: 0, Y: 0}, "P")
	require.NoError(t, err)
	return id
}

func TestDoubleLikeIdempotent(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	postID := setupPostAndUser(t, s, ctx)

	require.NoError(t, s.SetVote(ctx, "voter", postID, VoteLike))
	require.NoError(t, s.SetVote(ctx, "voter", postID, VoteLike))

	post, err := s.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, 1, post.Likes)
	assert.Equal(t, 0, post.Dislikes)
}

func TestLikeThenUnvoteRestoresCounters(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	postID := setupPostAndUser(t, s, ctx)

	before, err := s.GetPost(ctx, postID)
	require.NoError(t, err)

	require.NoError(t, s.SetVote(ctx, "voter", postID, VoteLike))
	require.NoError(t, s.SetVote(ctx, "voter", postID, VoteNone))

	after, err := s.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, before.Likes, after.Likes)
	assert.Equal(t, before.Dislikes, after.Dislikes)
	assert.Equal(t, before.Expiry, after.Expiry)

	kind, err := s.GetVote(ctx, "voter", postID)
	require.NoError(t, err)
	assert.Equal(t, VoteNone, kind)
}

func TestVoteCountsMatchRows(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, _, err := s.InsertPost(ctx, "", geo.Point{X: 0, Y: 0}, "P")
	require.NoError(t, err)

	for i, uid := range []string{"u1", "u2", "u3"} {
		require.NoError(t, s.InsertUser(ctx, uid, uid, "pw", 0))
		kind := VoteLike
		if i == 2 {
			kind = VoteDislike
		}
		require.NoError(t, s.SetVote(ctx, uid, id, kind))
	}

	post, err := s.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, post.Likes)
	assert.Equal(t, 1, post.Dislikes)

	var likeRows, dislikeRows int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM votes WHERE post_id=$1 AND kind='like'`, id).Scan(&likeRows))
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM votes WHERE post_id=$1 AND kind='dislike'`, id).Scan(&dislikeRows))
	assert.Equal(t, post.Likes, likeRows)
	assert.Equal(t, post.Dislikes, dislikeRows)
}

func TestSwitchVoteFromLikeToDislike(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	postID := setupPostAndUser(t, s, ctx)

	require.NoError(t, s.SetVote(ctx, "voter", postID, VoteLike))
	require.NoError(t, s.SetVote(ctx, "voter", postID, VoteDislike))

	post, err := s.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, 0, post.Likes)
	assert.Equal(t, 1, post.Dislikes)
}
