package redis

import (
	"context"
	"errors"
	"time"

	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
)

// OverviewCache implements progress.OverviewCache.
type OverviewCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewOverviewCache creates an overview cache. ttl <= 0 means TTLOverview.
func NewOverviewCache(cache *Cache, ttl time.Duration) *OverviewCache {
	if ttl <= 0 {
		ttl = TTLOverview
	}
	return &OverviewCache{cache: cache, ttl: ttl}
}

// Get returns the cached overview. A miss is (nil, false, nil).
func (c *OverviewCache) Get(ctx context.Context, userID string) (*progress.Overview, bool, error) {
	var ov progress.Overview
	if err := c.cache.Get(ctx, OverviewKey(userID), &ov); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &ov, true, nil
}

// Set stores the overview for the configured TTL. An overview older than the
// last invalidated version is dropped silently.
func (c *OverviewCache) Set(ctx context.Context, userID string, ov progress.Overview) error {
	_, err := c.cache.SetVersioned(ctx, OverviewKey(userID), ov, ov.Version, c.ttl)
	return err
}

// Invalidate drops the user's cached overview and fences out overviews
// read before version was committed.
func (c *OverviewCache) Invalidate(ctx context.Context, userID string, version int64) error {
	return c.cache.InvalidateVersioned(ctx, OverviewKey(userID), version, c.ttl)
}
