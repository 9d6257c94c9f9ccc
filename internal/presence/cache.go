// Package presence tracks which entities are known to exist in the database,
// so ingestion can skip repeated existence probes for hot guilds, channels,
// and authors.
package presence

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	"github.com/veylan/discord-rank-bot/internal/observability"
)

// Cache answers "have we already persisted this entity?" without a database
// round trip. A positive answer must always be correct; a negative answer
// only means the caller has to check storage. Entries are never removed
// except by LRU pressure or an explicit Reset.
type Cache interface {
	Contains(kind domain.EntityKind, id domain.Snowflake) bool
	MarkPresent(kind domain.EntityKind, id domain.Snowflake)
	Reset()
}

type lruCache struct {
	kinds map[domain.EntityKind]*lru.Cache[domain.Snowflake, struct{}]
}

// tracked lists the kinds the cache maintains. Messages are included because
// incremental re-ingestion probes every fetched ID.
var tracked = []domain.EntityKind{
	domain.KindGuild,
	domain.KindChannel,
	domain.KindUser,
	domain.KindMessage,
}

// NewCache builds an LRU-backed cache holding up to entries IDs per entity
// kind.
func NewCache(entries int) (Cache, error) {
	kinds := make(map[domain.EntityKind]*lru.Cache[domain.Snowflake, struct{}], len(tracked))

	for _, kind := range tracked {
		c, err := lru.New[domain.Snowflake, struct{}](entries)
		if err != nil {
			return nil, err
		}

		kinds[kind] = c
	}

	return &lruCache{kinds: kinds}, nil
}

func (c *lruCache) Contains(kind domain.EntityKind, id domain.Snowflake) bool {
	cache, ok := c.kinds[kind]
	if !ok {
		return false
	}

	if cache.Contains(id) {
		observability.PresenceCacheHits.WithLabelValues(string(kind)).Inc()

		return true
	}

	observability.PresenceCacheMisses.WithLabelValues(string(kind)).Inc()

	return false
}

func (c *lruCache) MarkPresent(kind domain.EntityKind, id domain.Snowflake) {
	if cache, ok := c.kinds[kind]; ok {
		cache.Add(id, struct{}{})
	}
}

// Reset drops every entry. Required after destructive deletes: a stale
// positive entry would make ingestion skip rows that no longer exist.
func (c *lruCache) Reset() {
	for _, cache := range c.kinds {
		cache.Purge()
	}
}
