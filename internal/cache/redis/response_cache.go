package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/mevrebels/internal/domain"
)

// ResponseCache implements domain.ResponseCache with plain string keys.
//
// Key schema:
//
//	cache:{key} - serialized response, expires after the caller's TTL
type ResponseCache struct {
	rdb *redis.Client
}

// NewResponseCache creates a ResponseCache backed by the given Client.
func NewResponseCache(c *Client) *ResponseCache {
	return &ResponseCache{rdb: c.Underlying()}
}

func responseKey(key string) string { return "cache:" + key }

// Get returns the cached value, or domain.ErrNotFound on a miss.
func (rc *ResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := rc.rdb.Get(ctx, responseKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get cached %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key for ttl.
func (rc *ResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := rc.rdb.Set(ctx, responseKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set cached %s: %w", key, err)
	}
	return nil
}
