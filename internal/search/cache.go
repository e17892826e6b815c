package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultDetailTTL is how long a cached detail record stays fresh. Provider
// detail payloads rarely change within a day.
const DefaultDetailTTL = 24 * time.Hour

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// CachedClient wraps a search Client with a redis-backed cache for detail
// fetches. Cache failures degrade to a direct provider call; the cache is
// never load-bearing.
type CachedClient struct {
	inner  Client
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedClient wraps inner with a detail cache. A zero ttl selects
// DefaultDetailTTL.
func NewCachedClient(inner Client, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = DefaultDetailTTL
	}
	return &CachedClient{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "detail_cache")),
	}
}

// Search passes through to the wrapped client. Search results are not cached:
// provider relevance ordering is time-sensitive.
func (c *CachedClient) Search(ctx context.Context, query, location string, filters Filters) ([]CandidateSummary, error) {
	return c.inner.Search(ctx, query, location, filters)
}

// FetchDetails returns a cached detail record when available, falling back
// to the provider and populating the cache on success.
func (c *CachedClient) FetchDetails(ctx context.Context, externalID string) (*DetailRecord, error) {
	key := detailKey(externalID)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var record DetailRecord
		if err := json.Unmarshal(data, &record); err == nil {
			c.logger.Debug("detail cache hit", zap.String("external_id", externalID))
			return &record, nil
		}
		// Corrupt entry; drop it and refetch.
		c.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("detail cache unavailable, fetching directly", zap.Error(err))
	}

	record, err := c.inner.FetchDetails(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(record); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("detail cache write failed", zap.Error(err))
		}
	}

	return record, nil
}

func detailKey(externalID string) string {
	return "jobdetail:" + externalID
}
