package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCachePrefix = "influencer:cache:"

// RedisCacheBackend stores cache entries in Redis with JSON serialization.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (CacheEntry, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return CacheEntry{}, false, nil
		}
		return CacheEntry{}, false, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return CacheEntry{}, false, err
	}
	return entry, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, entry CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, redisCachePrefix+key)
	}
	return r.client.Del(ctx, prefixed...).Err()
}

// Clear removes every entry under the cache prefix.
func (r *RedisCacheBackend) Clear(ctx context.Context) (int, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisCachePrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
