package services

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisKV stores docket buckets as plain redis strings under a common prefix
type RedisKV struct {
	client redisCommander
	prefix string
}

// NewRedisKV wraps a redis client; prefix namespaces every key
func NewRedisKV(client redisCommander, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "meu_perito"
	}
	return &RedisKV{client: client, prefix: prefix}
}

// NewRedisClient parses a redis:// URL into a client
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func (r *RedisKV) key(bucket, key string) string {
	return r.prefix + ":" + bucket + ":" + key
}

func (r *RedisKV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, r.key(bucket, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *RedisKV) Put(ctx context.Context, bucket, key string, value []byte) error {
	return r.client.Set(ctx, r.key(bucket, key), value, 0).Err()
}

func (r *RedisKV) Delete(ctx context.Context, bucket, key string) error {
	if err := r.client.Del(ctx, r.key(bucket, key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
