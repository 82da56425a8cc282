// ABOUTME: Redis-backed Locker using SET NX with a TTL and token-checked release
// ABOUTME: Used when several MindAid processes share one database
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/util"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on top of a Redis server
type RedisLocker struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	pollDelay time.Duration
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder can
// block a key.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:    client,
		prefix:    "mindaid:lock:",
		ttl:       ttl,
		pollDelay: 10 * time.Millisecond,
	}
}

// Lock polls SET NX until the key is acquired or ctx ends
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.New().String()

	for attempt := 0; ; attempt++ {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: acquiring lock %s: %v", models.ErrStorage, key, err)
		}
		if ok {
			break
		}
		// Back off up to 2^4 * pollDelay between polls
		if err := util.SleepContext(ctx, util.CalculateBackoff(r.pollDelay, min(attempt+1, 4))); err != nil {
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err()
		})
	}, nil
}
