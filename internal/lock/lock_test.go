package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, wait, lease time.Duration) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCoordinator(client, wait, lease), mr
}

func TestAcquireAndRelease(t *testing.T) {
	coord, mr := newTestCoordinator(t, 100*time.Millisecond, time.Second)
	ctx := context.Background()

	l, err := coord.Acquire(ctx, "account:1000000000:lock")
	require.NoError(t, err)
	assert.True(t, mr.Exists("account:1000000000:lock"))

	require.NoError(t, l.Release(ctx))
	assert.False(t, mr.Exists("account:1000000000:lock"))

	// Reacquire after release succeeds immediately.
	l2, err := coord.Acquire(ctx, "account:1000000000:lock")
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
}

func TestAcquireContendedTimesOut(t *testing.T) {
	coord, _ := newTestCoordinator(t, 60*time.Millisecond, time.Second)
	ctx := context.Background()

	held, err := coord.Acquire(ctx, "account:1:lock")
	require.NoError(t, err)
	defer held.Release(ctx)

	start := time.Now()
	_, err = coord.Acquire(ctx, "account:1:lock")
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestIndependentKeysDoNotContend(t *testing.T) {
	coord, _ := newTestCoordinator(t, 50*time.Millisecond, time.Second)
	ctx := context.Background()

	a, err := coord.Acquire(ctx, "account:1:lock")
	require.NoError(t, err)
	defer a.Release(ctx)

	b, err := coord.Acquire(ctx, "account:2:lock")
	require.NoError(t, err)
	defer b.Release(ctx)
}

func TestLeaseExpiryFreesLock(t *testing.T) {
	coord, mr := newTestCoordinator(t, 50*time.Millisecond, 200*time.Millisecond)
	ctx := context.Background()

	stale, err := coord.Acquire(ctx, "account:1:lock")
	require.NoError(t, err)

	mr.FastForward(250 * time.Millisecond)

	fresh, err := coord.Acquire(ctx, "account:1:lock")
	require.NoError(t, err)

	// The stale holder's release must not free the successor's lock.
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("account:1:lock"))

	require.NoError(t, fresh.Release(ctx))
	assert.False(t, mr.Exists("account:1:lock"))
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	coord, _ := newTestCoordinator(t, time.Second, time.Second)
	ctx := context.Background()

	held, err := coord.Acquire(ctx, "account:1:lock")
	require.NoError(t, err)
	defer held.Release(ctx)

	cancelCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = coord.Acquire(cancelCtx, "account:1:lock")
	require.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentAcquireIsMutuallyExclusive(t *testing.T) {
	coord, _ := newTestCoordinator(t, 2*time.Second, 5*time.Second)
	ctx := context.Background()

	const workers = 8
	var inSection int32
	var mu sync.Mutex
	var maxSeen int32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := coord.Acquire(ctx, "account:1:lock")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inSection++
			if inSection > maxSeen {
				maxSeen = inSection
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
			if err := l.Release(ctx); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen, "more than one holder observed inside the critical section")
}
