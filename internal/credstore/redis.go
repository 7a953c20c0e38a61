package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis-backed durable partition. Defaults can
// be loaded from the environment via envdecode.
type RedisConfig struct {
	// Addr like "localhost:6379". ENV: AUTH_REDIS_ADDR
	Addr string `env:"AUTH_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all credential keys. ENV: AUTH_REDIS_PREFIX
	KeyPrefix string `env:"AUTH_REDIS_PREFIX,default=cms:auth:"`
}

// Redis is a durable partition backed by a shared Redis instance, for
// deployments where sessions must survive the local host.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("credstore: redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "cms:auth:"
	}
	return &Redis{client: cl, keyPrefix: prefix}, nil
}

// NewRedisFromEnv builds a partition using envdecode to populate the config.
func NewRedisFromEnv() (*Redis, error) {
	var cfg RedisConfig
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("credstore: redis config: %w", err)
	}
	return NewRedis(cfg)
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.keyPrefix+key, value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyPrefix+key).Err()
}

// Close closes the Redis client.
func (r *Redis) Close() error { return r.client.Close() }
