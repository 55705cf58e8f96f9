package query

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration      = 30 * time.Minute
	DefaultCleanupInterval = time.Hour
)

// Cache keeps compiled queries keyed by language version and source hash,
// so a grammar change never serves a stale query.
type Cache struct {
	cache *gocache.Cache
}

func NewCache(expiration, cleanupInterval time.Duration) *Cache {
	return &Cache{cache: gocache.New(expiration, cleanupInterval)}
}

func cacheKey(lang KindSet, source string) string {
	sum := sha256.Sum256([]byte(source))
	prefix := ""
	if lang != nil {
		prefix = lang.Name() + "@" + lang.Version()
	}
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// Compile returns the cached query for source, compiling it on a miss.
// Compile errors are not cached.
func (c *Cache) Compile(lang KindSet, source string) (*Query, bool, error) {
	key := cacheKey(lang, source)
	if v, ok := c.cache.Get(key); ok {
		if q, ok := v.(*Query); ok {
			return q, true, nil
		}
	}
	q, err := Compile(lang, source)
	if err != nil {
		return nil, false, err
	}
	c.cache.Set(key, q, gocache.DefaultExpiration)
	return q, false, nil
}

func (c *Cache) Len() int { return c.cache.ItemCount() }

func (c *Cache) Flush() { c.cache.Flush() }
