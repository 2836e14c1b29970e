package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotCache stores resolved slot listings per doctor and date.
type SlotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Invalidate(ctx context.Context, key string) error
	// InvalidatePrefix drops every entry whose key starts with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type redisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration) SlotCache {
	return &redisSlotCache{client: client, ttl: ttl}
}

func (c *redisSlotCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, "slots:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get slot cache: %w", err)
	}
	return val, true, nil
}

func (c *redisSlotCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, "slots:"+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("set slot cache: %w", err)
	}
	return nil
}

func (c *redisSlotCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, "slots:"+key).Err(); err != nil {
		return fmt.Errorf("invalidate slot cache: %w", err)
	}
	return nil
}

func (c *redisSlotCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, "slots:"+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan slot cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate slot cache: %w", err)
	}
	return nil
}
