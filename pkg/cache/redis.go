package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores translations in Redis with a TTL. Keys embed a hash of
// the source text rather than the text itself, so long messages stay out
// of the keyspace.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a Redis-backed translation cache. A zero ttl
// disables expiry.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(text, sourceLang, targetLang, modelType string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("translation:%s:%s:%s:%x", modelType, sourceLang, targetLang, sum[:16])
}

// Get fetches a cached translation. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, text, sourceLang, targetLang, modelType string) (*Entry, error) {
	data, err := c.rdb.Get(ctx, cacheKey(text, sourceLang, targetLang, modelType)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached translation: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Set stores a translation with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, text, sourceLang, targetLang, modelType, translatedText string) error {
	entry := Entry{
		TranslatedText: translatedText,
		SourceLanguage: sourceLang,
		ModelType:      modelType,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.rdb.Set(ctx, cacheKey(text, sourceLang, targetLang, modelType), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache translation: %w", err)
	}
	return nil
}
