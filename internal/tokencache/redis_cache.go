// Package tokencache keeps a Redis read-through cache of API token to user id.
package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maitracle/mindnote-server/internal/auth"
)

var ErrMiss = errors.New("token not cached")

const defaultTTL = time.Hour

type entry struct {
	UserID   int64     `json:"user_id"`
	CachedAt time.Time `json:"cached_at"`
}

// RedisCache maps the SHA-256 of an API key to its owner's id.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "token:",
		ttl:    ttl,
	}
}

// key never embeds the raw API key.
func (c *RedisCache) key(apiKey string) string {
	return c.prefix + auth.HashToken(apiKey)
}

func (c *RedisCache) Put(ctx context.Context, apiKey string, userID int64) error {
	payload, err := json.Marshal(entry{UserID: userID, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal token entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(apiKey), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache token: %w", err)
	}
	return nil
}

func (c *RedisCache) Lookup(ctx context.Context, apiKey string) (int64, error) {
	raw, err := c.client.Get(ctx, c.key(apiKey)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, fmt.Errorf("lookup token: %w", err)
	}

	var cached entry
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return 0, fmt.Errorf("unmarshal token entry: %w", err)
	}
	return cached.UserID, nil
}

func (c *RedisCache) Evict(ctx context.Context, apiKey string) error {
	if err := c.client.Del(ctx, c.key(apiKey)).Err(); err != nil {
		return fmt.Errorf("evict token: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
