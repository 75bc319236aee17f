package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld signals the lock is already held by another owner. This is a
// normal contention outcome, not a Redis failure.
var ErrHeld = errors.New("lock already held")

// releaseScript deletes the lock key only when it still holds the caller's
// token, so a release after TTL expiry can never remove a lock a different
// owner re-acquired in the meantime.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Result reports the outcome of an acquisition attempt. When Acquired is
// true, Release must be called exactly once; the TTL reclaims the lock if
// the process dies first.
type Result struct {
	Acquired bool
	Err      error
	Release  func(ctx context.Context) error
}

// Lock is a Redis-backed mutual-exclusion primitive keyed by sync scope.
// Acquire never blocks or retries; callers decide how to react to a held
// lock.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// New creates a lock on the given key. The TTL must exceed the longest
// expected hold time; it is the crash-recovery path.
func New(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// Acquire attempts a single conditional set. A held lock yields
// Acquired=false with a descriptive error, which is a normal outcome,
// not a failure.
func (l *Lock) Acquire(ctx context.Context) Result {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return Result{Acquired: false, Err: fmt.Errorf("lock %s: %w", l.key, err)}
	}
	if !ok {
		return Result{Acquired: false, Err: fmt.Errorf("lock %s: %w", l.key, ErrHeld)}
	}

	return Result{
		Acquired: true,
		Release: func(ctx context.Context) error {
			deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
			if err != nil {
				return fmt.Errorf("release lock %s: %w", l.key, err)
			}
			if deleted == 0 {
				// Token mismatch: the TTL expired and someone else holds
				// the key now. Nothing to clean up.
				return nil
			}
			return nil
		},
	}
}

// TTL returns the configured lock TTL.
func (l *Lock) TTL() time.Duration {
	return l.ttl
}

// Key returns the lock's Redis key.
func (l *Lock) Key() string {
	return l.key
}
