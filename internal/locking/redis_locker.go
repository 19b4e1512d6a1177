// Package locking provides the per-dentist critical section used while
// booking: a Redis token lock shared across API replicas.
package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// ErrLockNotAcquired is returned when the wait time runs out while another holder keeps the key.
var ErrLockNotAcquired = errors.New("locking: lock not acquired")

const (
	defaultTTL   = 10 * time.Second
	defaultWait  = 5 * time.Second
	pollInterval = 20 * time.Millisecond
	keyPrefix    = "dentiflow:lock:"
)

// RedisLocker acquires SET NX PX keys holding a random token and releases
// them with a compare-and-delete script, so a holder whose TTL expired can
// never delete a successor's lock.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logging.Logger
}

// NewRedisLocker builds a locker. ttl bounds how long a crashed holder blocks
// the key; wait bounds how long Lock polls before giving up.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger *logging.Logger) *RedisLocker {
	if client == nil {
		panic("locking: redis client required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if wait <= 0 {
		wait = defaultWait
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, logger: logger}
}

// Lock blocks until key is held, the wait time elapses or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, redisKey, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, ErrLockNotAcquired
			}
			return nil, fmt.Errorf("locking: acquire %s: %w", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrLockNotAcquired
		case <-ticker.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("lock release failed", "key", key, "error", err)
	}
}
