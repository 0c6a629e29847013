// Package lock implements a Redis-backed mutual exclusion primitive keyed by
// resource name. Acquisition waits up to a configurable bound, the lease
// expires automatically so a crashed holder cannot wedge the resource, and
// release is token-guarded so a holder can never release a lock it lost.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTimeout indicates the lock could not be acquired within the wait bound.
var ErrTimeout = errors.New("lock: acquire timed out")

const defaultPollInterval = 25 * time.Millisecond

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Coordinator hands out per-resource locks backed by a shared Redis instance.
type Coordinator struct {
	client *redis.Client
	wait   time.Duration
	lease  time.Duration
	poll   time.Duration
}

// Lock is a held lease on a single resource key. Release exactly once.
type Lock struct {
	coord *Coordinator
	key   string
	token string
}

// NewCoordinator constructs a Coordinator. wait bounds how long Acquire
// blocks on a contended key; lease bounds how long the lock is held before
// automatic expiry.
func NewCoordinator(client *redis.Client, wait, lease time.Duration) *Coordinator {
	return &Coordinator{
		client: client,
		wait:   wait,
		lease:  lease,
		poll:   defaultPollInterval,
	}
}

// Acquire obtains the lock for key, blocking up to the wait bound. A
// contended key that never frees up yields ErrTimeout; the caller decides
// whether that is retryable.
func (c *Coordinator) Acquire(ctx context.Context, key string) (*Lock, error) {
	if key == "" {
		return nil, errors.New("lock: key required")
	}
	token := uuid.NewString()
	deadline := time.Now().Add(c.wait)

	for {
		ok, err := c.client.SetNX(ctx, key, token, c.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return &Lock{coord: c, key: key, token: token}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		pause := c.poll
		if pause > remaining {
			pause = remaining
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release frees the lock. Releasing after lease expiry is a no-op: the token
// no longer matches, so a successor's lock is left untouched.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.coord.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock: release %s: %w", l.key, err)
	}
	return nil
}

// Key returns the resource key the lock guards.
func (l *Lock) Key() string {
	return l.key
}
