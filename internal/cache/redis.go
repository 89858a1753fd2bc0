// Package cache implements the published-page cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cms-article-engine/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	connectionTimeout = 2 * time.Second

	// keySeparator splits the parts of a PageKey; stored paths never contain it
	keySeparator = "|"
)

// RedisCache keeps published pages in Redis under a tenant namespace
type RedisCache struct {
	client    *redis.Client
	namespace string
}

// NewRedisClient creates a Redis client and verifies the connection
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCache creates a page cache; namespace separates tenants sharing one Redis
func NewRedisCache(client *redis.Client, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

// GetPage retrieves a cached page
func (c *RedisCache) GetPage(ctx context.Context, key string) (*models.PublishedPage, error) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", key, err)
	}

	var page models.PublishedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode cached page %s: %w", key, err)
	}
	return &page, nil
}

// SetPage stores a page for ttl
func (c *RedisCache) SetPage(ctx context.Context, key string, page *models.PublishedPage, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set page %s: %w", key, err)
	}
	return nil
}

// InvalidatePath deletes every cached variant of urlPath
func (c *RedisCache) InvalidatePath(ctx context.Context, urlPath string) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.pathPrefix(urlPath)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan pages of %s: %w", urlPath, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate pages of %s: %w", urlPath, err)
	}
	return nil
}

// Close closes the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// redisKey hashes the logical key so arbitrary paths stay short and safe.
// The path gets its own hash segment so all variants of a path share a prefix.
func (c *RedisCache) redisKey(key string) string {
	path, variant, _ := strings.Cut(key, keySeparator)
	sum := sha256.Sum256([]byte(variant))
	return fmt.Sprintf("%s%x", c.pathPrefix(path), sum[:8])
}

func (c *RedisCache) pathPrefix(urlPath string) string {
	sum := sha256.Sum256([]byte(urlPath))
	return fmt.Sprintf("page:%s:%x:", c.namespace, sum[:16])
}

// PageKey builds the logical cache key for a published page lookup
func PageKey(urlPath, lang string, includeLayout bool) string {
	return strings.Join([]string{urlPath, strings.ToLower(lang), fmt.Sprintf("%t", includeLayout)}, keySeparator)
}
