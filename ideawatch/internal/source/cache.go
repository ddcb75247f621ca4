package source

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache memoizes successful source results per (source, query).
type Cache struct {
	c *gocache.Cache
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{c: gocache.New(ttl, 2*ttl)}
}

// Wrap returns s with results cached under name. Errors are not cached.
func (c *Cache) Wrap(name string, s Searcher) Searcher {
	return SearchFunc(func(ctx context.Context, query string) ([]Listing, error) {
		key := name + "\x00" + query
		if v, ok := c.c.Get(key); ok {
			cached := v.([]Listing)
			out := make([]Listing, len(cached))
			copy(out, cached)
			return out, nil
		}
		out, err := s.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		stored := make([]Listing, len(out))
		copy(stored, out)
		c.c.SetDefault(key, stored)
		return out, nil
	})
}
