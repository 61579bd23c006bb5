// Package apperr defines the sentinel errors shared across the session
// boundary (spec.md §7): domain packages return these directly, and
// internal/session is the only place that maps them to ack status codes.
package apperr

import "errors"

var (
	// ErrUnauthorized: missing/invalid token, or an operation attempted on
	// a resource the caller does not own.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound: user/post/guest not in store or not online when
	// required.
	ErrNotFound = errors.New("not found")
	// ErrUsernameTooLong: username exceeds the 50-character limit.
	ErrUsernameTooLong = errors.New("username too long")
	// ErrUsernameTaken: a same-username document already exists.
	ErrUsernameTaken = errors.New("username taken")
	// ErrUnprocessable: an invalid view rect or out-of-range zoom.
	ErrUnprocessable = errors.New("unprocessable")
	// ErrIndexUnavailable: the cluster or online-user index could not be
	// reached or its lock could not be acquired within the retry budget.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrServer: an unclassified store or cache failure.
	ErrServer = errors.New("server error")
)

// StatusCode maps a sentinel error to the ack status number defined in
// spec.md §7. Unrecognized errors map to 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrUsernameTooLong):
		return 406
	case errors.Is(err, ErrUsernameTaken):
		return 409
	case errors.Is(err, ErrUnprocessable):
		return 422
	default:
		return 500
	}
}
