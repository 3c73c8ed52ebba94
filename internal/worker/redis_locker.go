package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker leases a Redis key with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
}

// NewRedisLocker creates a locker on key.
func NewRedisLocker(client redis.UniversalClient, key string) *RedisLocker {
	return &RedisLocker{client: client, key: key}
}

func (l *RedisLocker) TryLock(ctx context.Context, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil || !acquired {
		return nil, false, err
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
