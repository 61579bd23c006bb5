package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearmap/server/internal/apperr"
)

func TestMintThenVerifyRoundTrips(t *testing.T) {
	s := New([]byte("a-test-secret-key-value"), time.Hour)

	token, err := s.Mint("user-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UID)
}

func TestVerifyEmptyTokenIsNoAuthHeader(t *testing.T) {
	s := New([]byte("a-test-secret-key-value"), time.Hour)

	_, err := s.Verify("")
	assert.ErrorIs(t, err, ErrNoAuthHeader)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := New([]byte("secret-one-value"), time.Hour)
	token, err := signer.Mint("user-123")
	require.NoError(t, err)

	other := New([]byte("secret-two-value"), time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := New([]byte("a-test-secret-key-value"), -time.Hour)

	token, err := s.Mint("user-123")
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
