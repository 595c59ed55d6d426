package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// searchKeyPrefix namespaces cache entries so a shared Redis can host
// other keyspaces.
const searchKeyPrefix = "fern:search:"

// SearchCache caches ranked search responses for a short window. The TTL
// bounds staleness after imports and merges; entries are never invalidated
// eagerly.
type SearchCache struct {
	client *Client
	logger ectologger.Logger
	ttl    time.Duration
}

// NewSearchCache creates a new search cache
func NewSearchCache(client *Client, logger ectologger.Logger, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &SearchCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Key builds the cache key for a query. Queries that differ only in case
// or surrounding whitespace share an entry.
func (c *SearchCache) Key(query string, limit int) string {
	return searchKeyPrefix + fingerprint.Generate(map[string]any{
		"query": strings.ToLower(strings.TrimSpace(query)),
		"limit": limit,
	})
}

// Get returns the cached response for a query, or nil on a miss. Cached
// responses come back flagged so callers can tell them apart.
func (c *SearchCache) Get(ctx context.Context, query string, limit int) *models.SearchResponse {
	ctx, span := tracing.StartSpan(ctx, "redis.SearchCache.Get")
	defer span.End()

	raw, err := c.client.Get(ctx, c.Key(query, limit))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithContext(ctx).WithError(err).Warn("Search cache lookup failed")
		}
		metrics.RecordCacheLookup(false)
		return nil
	}

	var response models.SearchResponse
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Dropping unreadable search cache entry")
		metrics.RecordCacheLookup(false)
		return nil
	}

	metrics.RecordCacheLookup(true)
	response.Cached = true
	return &response
}

// Put stores a response for later lookups. Cache failures are soft: the
// response already exists, so the caller never sees the error.
func (c *SearchCache) Put(ctx context.Context, query string, limit int, response *models.SearchResponse) {
	ctx, span := tracing.StartSpan(ctx, "redis.SearchCache.Put")
	defer span.End()

	data, err := json.Marshal(response)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to encode search response for cache")
		return
	}

	if err := c.client.Set(ctx, c.Key(query, limit), data, c.ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to store search response in cache")
	}
}
