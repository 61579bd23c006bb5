package store

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/nearmap/server/internal/apperr"
)

// MaxUsernameLen is the spec.md §3 username length limit.
const MaxUsernameLen = 50

// InsertUser implements spec.md §4.D insert_user(uid, username, password,
// avatar): rejects with ErrUsernameTaken if a same-username document
// exists, stores a bcrypt hash with default cost.
func (s *Store) InsertUser(ctx context.Context, uid, username, password string, avatar int) error {
	if len(username) > MaxUsernameLen {
		return apperr.ErrUsernameTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.ErrServer
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, username, avatar, hash) VALUES ($1, $2, $3, $4)
	`, uid, username, avatar, string(hash))
	return classifyWriteErr("insert_user", err)
}

// GetUser implements spec.md §4.D get<T>(collection, id) for users.
func (s *Store) GetUser(ctx context.Context, uid string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, avatar, hash FROM users WHERE id = $1
	`, uid)

	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Avatar, &u.Hash)
	if isNoRows(err) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, classifyWriteErr("get_user", err)
	}
	return &u, nil
}

// GetUserByUsername looks a user up by username, used by sign-in
// (spec.md §4.G `sign-in`).
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, avatar, hash FROM users WHERE username = $1
	`, username)

	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Avatar, &u.Hash)
	if isNoRows(err) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, classifyWriteErr("get_user_by_username", err)
	}
	return &u, nil
}

// EditUser implements spec.md §4.D edit_user(uid, avatar?, username?):
// translates a unique-index violation into ErrUsernameTaken.
func (s *Store) EditUser(ctx context.Context, uid string, avatar *int, username *string) error {
	if username != nil && len(*username) > MaxUsernameLen {
		return apperr.ErrUsernameTooLong
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			avatar = coalesce($2, avatar),
			username = coalesce($3, username)
		WHERE id = $1
	`, uid, avatar, username)
	if err != nil {
		return classifyWriteErr("edit_user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteUser implements spec.md §4.D delete_user(uid, socket_id?): removes
// the user document and every vote with a matching uid. The online-user
// index entry (if any) is removed by the caller (internal/session's
// exit-world handler), since
// that is the online-user index's concern (internal/onlineindex), not the
// document store's.
func (s *Store) DeleteUser(ctx context.Context, uid string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM votes WHERE uid = $1`, uid)
	if err != nil {
		return classifyWriteErr("delete_user votes", err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, uid)
	if err != nil {
		return classifyWriteErr("delete_user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// VerifyPassword implements spec.md §4.H's constant-time password
// verification (bcrypt.CompareHashAndPassword is constant-time by
// construction).
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
