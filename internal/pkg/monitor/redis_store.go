package monitor

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const redisCounterKey = "payment:monitor:counters"

// RedisStore keeps the monitoring counters in a Redis hash so they survive
// process restarts: one hash, one field per counter name.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: redisCounterKey}
}

func (s *RedisStore) Increment(name string, delta int64) error {
	return s.client.HIncrBy(context.Background(), s.key, name, delta).Err()
}

func (s *RedisStore) Get(name string) (int64, error) {
	val, err := s.client.HGet(context.Background(), s.key, name).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func (s *RedisStore) Reset() error {
	return s.client.Del(context.Background(), s.key).Err()
}
