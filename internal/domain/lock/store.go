package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store provides the atomic primitives the lock service is built on.
// Compare-and-delete and compare-and-expire must be atomic: a plain
// read-then-write could release a lock re-acquired by someone else after
// TTL expiry.
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end`)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client as a lock store
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	res, err := releaseScript.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *redisStore) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, s.client, []string{key}, value, int(ttl.Seconds())).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}
