package store

import (
	"context"

	"github.com/nearmap/server/internal/apperr"
)

// GetVote implements spec.md §4.D get_vote(uid, post_id) -> VoteKind:
// absence of a row means VoteNone.
func (s *Store) GetVote(ctx context.Context, uid, postID string) (VoteKind, error) {
	var kind string
	err := s.pool.QueryRow(ctx, `
		SELECT kind FROM votes WHERE uid = $1 AND post_id = $2
	`, uid, postID).Scan(&kind)
	if isNoRows(err) {
		return VoteNone, nil
	}
	if err != nil {
		return VoteNone, classifyWriteErr("get_vote", err)
	}
	return voteKindFromColumn(kind), nil
}

// SetVote implements spec.md §4.D set_vote(uid, post_id, new): reads the
// old vote, no-ops if unchanged, otherwise updates the votes table (delete
// if new == VoteNone, upsert otherwise) and atomically increments the
// post's likes/dislikes/expiry counters by the weight delta, all within a
// single transaction so the vote row and the post counters never observe
// each other's absence.
func (s *Store) SetVote(ctx context.Context, uid, postID string, newKind VoteKind) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyWriteErr("set_vote begin", err)
	}
	defer tx.Rollback(ctx)

	// Lock the post row first: FOR UPDATE on a vote row that does not exist
	// yet locks nothing, so two concurrent first votes would both count.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM posts WHERE id = $1 FOR UPDATE`, postID); err != nil {
		return classifyWriteErr("set_vote lock", err)
	}

	var oldColumn string
	err = tx.QueryRow(ctx, `
		SELECT kind FROM votes WHERE uid = $1 AND post_id = $2 FOR UPDATE
	`, uid, postID).Scan(&oldColumn)
	old := VoteNone
	switch {
	case err == nil:
		old = voteKindFromColumn(oldColumn)
	case isNoRows(err):
		old = VoteNone
	default:
		return classifyWriteErr("set_vote read", err)
	}

	if old == newKind {
		return nil
	}

	switch newKind {
	case VoteNone:
		_, err = tx.Exec(ctx, `DELETE FROM votes WHERE uid = $1 AND post_id = $2`, uid, postID)
	default:
		_, err = tx.Exec(ctx, `
			INSERT INTO votes (post_id, uid, kind) VALUES ($2, $1, $3)
			ON CONFLICT (post_id, uid) DO UPDATE SET kind = excluded.kind
		`, uid, postID, newKind.column())
	}
	if err != nil {
		return classifyWriteErr("set_vote write", err)
	}

	dLikes := deltaWeight(old == VoteLike, newKind == VoteLike)
	dDislikes := deltaWeight(old == VoteDislike, newKind == VoteDislike)
	dExpiry := newKind.weight() - old.weight()

	tag, err := tx.Exec(ctx, `
		UPDATE posts SET likes = likes + $2, dislikes = dislikes + $3, expiry = expiry + $4
		WHERE id = $1
	`, postID, dLikes, dDislikes, dExpiry)
	if err != nil {
		return classifyWriteErr("set_vote counters", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyWriteErr("set_vote commit", err)
	}
	return nil
}

func deltaWeight(was, is bool) int {
	switch {
	case was == is:
		return 0
	case is:
		return 1
	default:
		return -1
	}
}
