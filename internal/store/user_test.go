//go:build integration

package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearmap/server/internal/apperr"
)

func TestInsertUserRejectsDuplicateUsername(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.InsertUser(ctx, "u1", "same-name", "pw", 1))
	err := s.InsertUser(ctx, "u2", "same-name", "pw", 2)
	assert.ErrorIs(t, err, apperr.ErrUsernameTaken)
}

func TestInsertUserRejectsOverlongUsername(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	long := make([]byte, MaxUsernameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	err := s.InsertUser(ctx, "u1", string(long), "pw", 0)
	assert.ErrorIs(t, err, apperr.ErrUsernameTooLong)
}

func TestEditUserTranslatesUniqueViolation(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.InsertUser(ctx, "u1", "alice", "pw", 0))
	require.NoError(t, s.InsertUser(ctx, "u2", "bob", "pw", 0))

	taken := "alice"
	err := s.EditUser(ctx, "u2", nil, &taken)
	assert.ErrorIs(t, err, apperr.ErrUsernameTaken)
}

func TestPasswordVerification(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.InsertUser(ctx, "u1", "alice", "correct horse", 0))
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(u.Hash, "correct horse"))
	assert.False(t, VerifyPassword(u.Hash, "wrong"))
}

// TestConcurrentSignupOneWins covers spec.md §8's "two concurrent
// insert_user calls with the same username: exactly one succeeds".
func TestConcurrentSignupOneWins(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := "racer-" + string(rune('a'+i))
			err := s.InsertUser(ctx, uid, "contested-name", "pw", 0)
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range successes {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
