package locking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, wait, nil), mr
}

func TestLockAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 100*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "dentist:a")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"dentist:a"))

	unlock()
	assert.False(t, mr.Exists(keyPrefix+"dentist:a"))
}

func TestLockTimesOutWhileHeld(t *testing.T) {
	locker, _ := newTestLocker(t, 5*time.Second, 80*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "dentist:b")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), "dentist:b")
	assert.True(t, errors.Is(err, ErrLockNotAcquired), "got %v", err)
}

func TestReleaseDoesNotDeleteForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 50*time.Millisecond)

	unlock, err := locker.Lock(context.Background(), "dentist:c")
	require.NoError(t, err)

	// Simulate expiry and a new holder taking over.
	require.NoError(t, mr.Set(keyPrefix+"dentist:c", "someone-else"))
	unlock()

	got, err := mr.Get(keyPrefix + "dentist:c")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLockSerializesHolders(t *testing.T) {
	locker, _ := newTestLocker(t, 5*time.Second, 3*time.Second)

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "dentist:d")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}
