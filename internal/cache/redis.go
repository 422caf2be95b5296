package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "glimpse:"

// RedisStore keeps entries in Redis. Expiry is delegated to the server via
// SET EX, so EvictExpired has nothing to do.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the server described by url, for example
// redis://localhost:6379/0.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, wrapErr("redis", "open", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, wrapErr("redis", "open", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, redisPrefix+string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("redis", "get", err)
	}
	return data, true, nil
}

func (r *RedisStore) Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, redisPrefix+string(key), value, ttl).Err(); err != nil {
		return wrapErr("redis", "put", err)
	}
	return nil
}

func (r *RedisStore) EvictExpired(context.Context) (int, error) { return 0, nil }

func (r *RedisStore) Ping(ctx context.Context) error {
	return wrapErr("redis", "ping", r.client.Ping(ctx).Err())
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
