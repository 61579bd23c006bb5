package store

import (
	"context"

	"github.com/nearmap/server/internal/apperr"
	"github.com/nearmap/server/internal/clock"
	"github.com/nearmap/server/internal/geo"
)

// InsertPost implements spec.md §4.D insert_post(author_id?, pos, body):
// assigns expiry = today + 7, and returns (id, blurb) where blurb is the
// body truncated to 25 code points.
func (s *Store) InsertPost(ctx context.Context, authorID string, pos geo.Point, body string) (id, blurb string, err error) {
	id, err = GenID()
	if err != nil {
		return "", "", apperr.ErrServer
	}
	expiry := clock.Today() + 7

	var authorArg interface{}
	if authorID != "" {
		authorArg = authorID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO posts (id, author_id, pos, body, likes, dislikes, views, expiry)
		VALUES ($1, $2, ST_MakePoint($3, $4)::geography, $5, 0, 0, 0, $6)
	`, id, authorArg, pos.X, pos.Y, body, expiry)
	if err != nil {
		return "", "", classifyWriteErr("insert_post", err)
	}

	return id, blurbOf(body), nil
}

// GetPost implements spec.md §4.D get<T>(collection, id) for posts.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, coalesce(author_id, ''), ST_X(pos::geometry), ST_Y(pos::geometry),
		       body, likes, dislikes, views, expiry
		FROM posts WHERE id = $1
	`, id)

	var p Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.X, &p.Y, &p.Body, &p.Likes, &p.Dislikes, &p.Views, &p.Expiry)
	if isNoRows(err) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, classifyWriteErr("get_post", err)
	}
	return &p, nil
}

// DeletePost implements spec.md §4.D delete_post(id): deletes the post and
// every vote with a matching post_id (the votes FK is ON DELETE CASCADE,
// so a single statement satisfies both).
func (s *Store) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return classifyWriteErr("delete_post", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// IncrementView implements spec.md §4.D increment_view(post_id): +1 to
// views and +1 to expiry; returns whether the post existed.
//
// Open question (spec.md §9): whether expiry should still bump once a
// post is already expired is undefined by the source. This bumps
// unconditionally, the simplest rule consistent with invariant 4 (which
// makes no exception for expired posts).
func (s *Store) IncrementView(ctx context.Context, postID string) (existed bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET views = views + 1, expiry = expiry + 1 WHERE id = $1
	`, postID)
	if err != nil {
		return false, classifyWriteErr("increment_view", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GeoqueryPosts implements spec.md §4.D geoquery_posts(rect): a bounding-
// box query on pos cast to geometry (the cast means the geography GiST
// index on pos is not used for it), returning a lean projection
// (pos, blurb, id) — the Postgres/PostGIS analogue of the spec's abstract
// "$geoWithin polygon query hitting the 2dsphere index".
func (s *Store) GeoqueryPosts(ctx context.Context, rect geo.Rect) ([]PostPOI, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ST_X(pos::geometry), ST_Y(pos::geometry), body
		FROM posts
		WHERE ST_Within(pos::geometry, ST_MakeEnvelope($1, $2, $3, $4, 4326))
	`, rect.Left, rect.Bottom, rect.Right, rect.Top)
	if err != nil {
		return nil, classifyWriteErr("geoquery_posts", err)
	}
	defer rows.Close()

	var out []PostPOI
	for rows.Next() {
		var id, body string
		var x, y float64
		if err := rows.Scan(&id, &x, &y, &body); err != nil {
			return nil, classifyWriteErr("geoquery_posts scan", err)
		}
		out = append(out, PostPOI{ID: id, X: x, Y: y, Blurb: blurbOf(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyWriteErr("geoquery_posts rows", err)
	}
	return out, nil
}

// DeleteExpiredPosts implements spec.md §4.E nightly reconciliation step
// 1: deletes every post whose expiry < today. Votes referencing deleted
// posts cascade via the FK.
func (s *Store) DeleteExpiredPosts(ctx context.Context, today int) (deleted int, err error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE expiry < $1`, today)
	if err != nil {
		return 0, classifyWriteErr("delete_expired_posts", err)
	}
	return int(tag.RowsAffected()), nil
}

// AllPosts implements spec.md §4.E nightly reconciliation step 3: streams
// every remaining post for re-insertion into the cluster index. The
// reconciliation job reuses InsertPost's sibling on the cluster-index side
// (clusterindex.Insert) rather than re-running InsertPost here, so this
// only needs position and blurb.
func (s *Store) AllPosts(ctx context.Context) ([]PostPOI, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ST_X(pos::geometry), ST_Y(pos::geometry), body FROM posts
	`)
	if err != nil {
		return nil, classifyWriteErr("all_posts", err)
	}
	defer rows.Close()

	var out []PostPOI
	for rows.Next() {
		var id, body string
		var x, y float64
		if err := rows.Scan(&id, &x, &y, &body); err != nil {
			return nil, classifyWriteErr("all_posts scan", err)
		}
		out = append(out, PostPOI{ID: id, X: x, Y: y, Blurb: blurbOf(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyWriteErr("all_posts rows", err)
	}
	return out, nil
}
