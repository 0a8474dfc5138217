package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process holds the lock.
var ErrLockHeld = errors.New("lock: held by another process")

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobLocker is a gocron.Locker backed by SET NX PX. Several workers can
// share one Redis and each scheduled run executes on a single worker.
type JobLocker struct {
	cache *Cache
	ttl   time.Duration
}

var _ gocron.Locker = (*JobLocker)(nil)

// NewJobLocker creates a locker whose locks expire after ttl.
func NewJobLocker(cache *Cache, ttl time.Duration) *JobLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &JobLocker{cache: cache, ttl: ttl}
}

// Lock implements gocron.Locker.
func (l *JobLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := uuid.NewString()
	fullKey := l.cache.Key("lock", key)

	ok, err := l.cache.Client().SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", key, ErrLockHeld)
	}
	return &jobLock{client: l.cache.Client(), key: fullKey, token: token}, nil
}

type jobLock struct {
	client *redis.Client
	key    string
	token  string
}

// Unlock implements gocron.Lock.
func (j *jobLock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, j.client, []string{j.key}, j.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unlock %s: %w", j.key, err)
	}
	return nil
}
