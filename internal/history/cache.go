package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"shop-assistant/internal/common/database"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// MemoryCache is the in-process distribution cache used when Redis is not
// configured.
type MemoryCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	dist     *models.PriceDistribution
	expiresAt time.Time
}

// NewMemoryCache builds an in-process cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*models.PriceDistribution, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.dist, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, dist *models.PriceDistribution) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{dist: dist, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// RedisCache stores distributions as JSON with Redis-managed expiry, letting
// multiple processes share one computed distribution.
type RedisCache struct {
	client *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

// NewRedisCache wraps a Redis client as a distribution cache.
func NewRedisCache(client *database.RedisClient, ttl time.Duration, log logger.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.PriceDistribution, bool) {
	raw, err := c.client.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}

	var dist models.PriceDistribution
	if err := json.Unmarshal([]byte(raw), &dist); err != nil {
		c.logger.Warn("corrupt cached distribution", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	return &dist, true
}

func (c *RedisCache) Set(ctx context.Context, key string, dist *models.PriceDistribution) {
	raw, err := json.Marshal(dist)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.logger.Warn("distribution cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
