package userlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/wasteloop/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	keyUserLock = "wasteloop:user-lock:%s"

	lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
	minRetryDelay  = 25 * time.Millisecond
	maxRetryDelay  = 250 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// RedisLocker is a SETNX lock with an owner token; release only deletes the
// key while the token still matches.
type RedisLocker struct {
	client  *redis.Client
	script  *redis.Script
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.WorkerMetrics
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger, m *metrics.WorkerMetrics) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:  client,
		script:  redis.NewScript(lockReleaseScript),
		ttl:     ttl,
		log:     log,
		metrics: m,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, userID snowflake.ID) (func(), error) {
	if userID == 0 {
		return nil, errors.New("user lock key is empty")
	}
	key := fmt.Sprintf(keyUserLock, userID.String())
	start := time.Now()
	delay := minRetryDelay

	for {
		token, ok, err := l.tryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			l.metrics.ObserveLockWait(metrics.LockResourceUser, time.Since(start))
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			l.metrics.ObserveLockWait(metrics.LockResourceUser, time.Since(start))
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (l *RedisLocker) tryLock(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// release runs on a fresh context so a cancelled request still frees the lock.
func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := l.script.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.log.Warn("user lock release failed", zap.String("key", key), zap.Error(err))
	}
}
