package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisL1 implements L1 against a Redis server, the cache backend the
// L1_URL/L1_PASSWORD environment variables describe.
type RedisL1 struct {
	client *redis.Client
}

// RedisOptions mirrors the subset of redis.Options the CLI's environment
// variables populate.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisL1 dials a Redis client. No connection is established eagerly;
// the first call surfaces any connectivity problem.
func NewRedisL1(opts RedisOptions) *RedisL1 {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisL1{client: client}
}

// Close releases the underlying connection pool.
func (r *RedisL1) Close() error {
	return r.client.Close()
}

func (r *RedisL1) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisL1) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisL1) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisL1) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
