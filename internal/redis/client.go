package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOption tunes the connection pool shared by the slot locker and slot cache.
type ClientOption func(*redis.Options)

// WithPoolSize caps open connections. Lock and cache calls are short, so small
// processes like the no-show worker run with a handful.
func WithPoolSize(n int) ClientOption {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
			if o.MinIdleConns > n {
				o.MinIdleConns = n
			}
		}
	}
}

func WithIOTimeout(d time.Duration) ClientOption {
	return func(o *redis.Options) {
		if d > 0 {
			o.ReadTimeout = d
			o.WriteTimeout = d
		}
	}
}

// NewRedisClient connects and pings once so a bad address fails at startup
// rather than on the first booking.
func NewRedisClient(addr, username, password string, opts ...ClientOption) (*redis.Client, error) {
	o := &redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	rdb := redis.NewClient(o)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}
