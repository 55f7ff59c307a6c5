package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ZenMix/logger"
	"ZenMix/model"

	"github.com/go-redis/redis/v8"
)

// catalogTTL 目录缓存过期时间
const catalogTTL = 5 * time.Minute

// CatalogCache caches catalog listings in Redis. The catalog changes only
// on explicit upload/delete, so a short TTL plus invalidation on write is
// enough.
type CatalogCache struct {
	client *redis.Client
}

// NewCatalogCache 创建目录缓存
func NewCatalogCache(client *redis.Client) *CatalogCache {
	return &CatalogCache{client: client}
}

func catalogKey(category string, ownerID *int64, builtInOnly bool) string {
	owner := "-"
	if ownerID != nil {
		owner = fmt.Sprintf("%d", *ownerID)
	}
	return fmt.Sprintf("catalog:sounds:%s:%s:%t", category, owner, builtInOnly)
}

// Get returns the cached listing, or nil, false on a miss. Cache errors
// are logged and reported as misses so Redis being down never breaks the
// catalog.
func (c *CatalogCache) Get(ctx context.Context, category string, ownerID *int64, builtInOnly bool) ([]*model.AudioTrack, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, catalogKey(category, ownerID, builtInOnly)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("catalog cache read failed", logger.ErrorField(err))
		}
		return nil, false
	}

	var sounds []*model.AudioTrack
	if err := json.Unmarshal(data, &sounds); err != nil {
		logger.Warn("catalog cache decode failed", logger.ErrorField(err))
		return nil, false
	}
	return sounds, true
}

// Set stores a listing with the catalog TTL.
func (c *CatalogCache) Set(ctx context.Context, category string, ownerID *int64, builtInOnly bool, sounds []*model.AudioTrack) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(sounds)
	if err != nil {
		logger.Warn("catalog cache encode failed", logger.ErrorField(err))
		return
	}

	if err := c.client.Set(ctx, catalogKey(category, ownerID, builtInOnly), data, catalogTTL).Err(); err != nil {
		logger.Warn("catalog cache write failed", logger.ErrorField(err))
	}
}

// Invalidate drops every cached listing. Called after uploads and deletes.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}

	keys, err := c.client.Keys(ctx, "catalog:sounds:*").Result()
	if err != nil {
		logger.Warn("catalog cache invalidation scan failed", logger.ErrorField(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("catalog cache invalidation failed", logger.ErrorField(err))
	}
}
