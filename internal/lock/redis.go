package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// releaseScript deletes the key only if it still holds our token, so a
// lease that expired and was re-acquired by someone else is never freed by
// the previous holder.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX so that every instance of
// the service shares the same leases.  TTL bounds how long a crashed holder
// can block a property; Wait bounds how long Acquire polls for a busy key.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
}

// NewRedisLocker returns a locker using rdb.  Zero durations fall back to a
// 10s TTL, a 5s wait budget and a 50ms poll interval.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, wait: wait, retry: 50 * time.Millisecond}
}

var errBusy = errors.New("lease busy")

// Acquire polls until the key is free, the wait budget is spent or ctx is
// done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	b := retry.WithMaxDuration(l.wait, retry.NewConstant(l.retry))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if !ok {
			return retry.RetryableError(errBusy)
		}
		return nil
	})
	if errors.Is(err, errBusy) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotAcquired)
	}
	if err != nil {
		return nil, err
	}
	return &redisLease{rdb: l.rdb, key: key, token: token}, nil
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
	once  sync.Once
	err   error
}

func (s *redisLease) Release(ctx context.Context) error {
	s.once.Do(func() {
		s.err = releaseScript.Run(ctx, s.rdb, []string{s.key}, s.token).Err()
	})
	return s.err
}
