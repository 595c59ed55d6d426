package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
)

func newTestCache(ttl time.Duration) *SearchCache {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewSearchCache(nil, logger, ttl)
}

func TestSearchCacheKey_Stable(t *testing.T) {
	cache := newTestCache(time.Minute)

	base := cache.Key("lawyers in Quezon City", 20)

	// Case and surrounding whitespace are presentation, not intent.
	assert.Equal(t, base, cache.Key("Lawyers in Quezon City", 20))
	assert.Equal(t, base, cache.Key("  lawyers in quezon city  ", 20))
	assert.Equal(t, base, cache.Key("LAWYERS IN QUEZON CITY", 20))

	assert.True(t, strings.HasPrefix(base, "fern:search:"))
}

func TestSearchCacheKey_Discriminates(t *testing.T) {
	cache := newTestCache(time.Minute)

	base := cache.Key("lawyers in Quezon City", 20)

	assert.NotEqual(t, base, cache.Key("doctors in Quezon City", 20))
	assert.NotEqual(t, base, cache.Key("lawyers in Quezon City", 50))

	// Interior whitespace is content; collapsing it would conflate
	// distinct tokens.
	assert.NotEqual(t, base, cache.Key("lawyers in QuezonCity", 20))
}

func TestNewSearchCache_TTLDefault(t *testing.T) {
	assert.Equal(t, 60*time.Second, newTestCache(0).ttl)
	assert.Equal(t, 60*time.Second, newTestCache(-time.Second).ttl)
	assert.Equal(t, 5*time.Minute, newTestCache(5*time.Minute).ttl)
}
