package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption adjusts the client options before OpenRedis connects.
type RedisOption func(*redis.Options)

// WithRedisAuth sets the password and logical database.
func WithRedisAuth(password string, db int) RedisOption {
	return func(o *redis.Options) {
		o.Password = password
		o.DB = db
	}
}

func WithRedisPoolSize(n int) RedisOption {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

// OpenRedis connects to addr and verifies the connection with PING.
// Session reads sit on the request path, so timeouts are short.
func OpenRedis(ctx context.Context, addr string, opts ...RedisOption) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	o := &redis.Options{
		Addr:            addr,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		PoolSize:        20,
		PoolTimeout:     2 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}

	rdb := redis.NewClient(o)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}
