// Package auth mints and verifies the session JWTs described in
// spec.md §4.H: an HMAC-signed token carrying a `uid` claim plus issued-at
// and expiry claims, used as
// the bearer credential for every authenticated WebSocket request event.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nearmap/server/internal/apperr"
)

// ErrNoAuthHeader is returned by Verify when no token was supplied at
// all, distinct from an invalid/expired token. The session protocol
// handles both the same way: acks map both to 401, and `post` publishes
// anonymously in either case.
var ErrNoAuthHeader = errors.New("no auth token supplied")

// Claims is the JWT payload: a `uid`, matching
// original_source/src/auth.rs's JWTPayload, plus the registered iat/exp
// claims.
type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Signer mints and verifies tokens against a shared HMAC secret.
type Signer struct {
	secret   []byte
	duration time.Duration
}

// New builds a Signer. duration is the token lifetime (spec.md §6
// TOKEN_DURATION_HOURS).
func New(secret []byte, duration time.Duration) *Signer {
	return &Signer{secret: secret, duration: duration}
}

// Mint creates a signed token for uid.
func (s *Signer) Mint(uid string) (string, error) {
	now := time.Now()
	claims := Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.ErrServer
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning its claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoAuthHeader
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.ErrUnauthorized
	}
	return claims, nil
}
