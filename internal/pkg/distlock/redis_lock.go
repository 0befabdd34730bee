package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lockKeyPrefix namespaces governor locks next to the quota counters.
const lockKeyPrefix = "governor:lock:"

// compareAndDelete removes the key only while it still carries our token.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX lock with a TTL. Each instance carries its own
// token, so releasing a lock that expired and was taken by someone else
// is a no-op.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lock for key. The TTL bounds how long a crashed
// holder can block others.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    lockKeyPrefix + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire tries once to take the lock.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release drops the lock if this instance still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := compareAndDelete.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
