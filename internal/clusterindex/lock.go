package clusterindex

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// lockLease is the minimum lease duration required by spec.md §4.B /
// §5 ("lease >= 1 second").
const lockLease = 1500 * time.Millisecond

// lockRetryInterval and lockMaxWait bound the indefinite-retry lock
// acquisition the source uses (spec.md §4.B "Failure" / §9 Open
// Questions): implementations SHOULD bound retries and surface
// ErrIndexUnavailable rather than retrying forever.
const (
	lockRetryInterval = 50 * time.Millisecond
	lockMaxWait       = 3 * time.Second
)

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// lockHandle is a held distributed lock; release it with unlock.
type lockHandle struct {
	key   string
	token string
}

// acquireLock implements the two named locks ("add post pt", "delete
// post") from spec.md §4.B: SET NX PX, retried with a fixed backoff,
// bounded so a caller sees ErrIndexUnavailable instead of blocking
// forever.
func acquireLock(ctx context.Context, rdb *redis.Client, name string) (*lockHandle, error) {
	key := "lock:" + name
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(lockMaxWait)
	for {
		ok, err := rdb.SetNX(ctx, key, token, lockLease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &lockHandle{key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrIndexUnavailable
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (l *lockHandle) release(ctx context.Context, rdb *redis.Client) {
	// Best-effort: a lock that expires naturally (lease elapsed) is not a
	// failure, so errors here are not surfaced to the caller. Every
	// early-return path in Insert/Delete defers this.
	unlockScript.Run(ctx, rdb, []string{l.key}, l.token)
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
