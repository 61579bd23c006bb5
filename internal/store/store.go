// Package store is the document store adapter (spec.md §4.D): authoritative
// persistence for posts, users, and votes over PostgreSQL + PostGIS.
package store

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nearmap/server/internal/apperr"
)

// postgresUniqueViolation is the Postgres SQLSTATE for a unique-constraint
// violation — the PostGIS/Postgres analogue of the spec's Mongo error code
// 11000 (spec.md §4.D).
const postgresUniqueViolation = "23505"

// Store is the document store adapter. Zero value is not usable; build one
// with New.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store over an existing connection pool (see
// internal/storage.Postgres for pool construction and tuning).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}

// classifyWriteErr maps a raw pgx error into the session-boundary taxonomy
// (spec.md §7): unique violations become ErrUsernameTaken, everything else
// is logged and surfaced as ErrServer.
func classifyWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return apperr.ErrUsernameTaken
	}
	log.Printf("store: %s failed: %v", op, err)
	return apperr.ErrServer
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
