package search

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores search hits by exact query string. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(query string) ([]Hit, bool)
	Add(query string, hits []Hit)
	Purge()
}

// LRUCache is a capacity-bounded least-recently-used Cache.
type LRUCache struct {
	entries *lru.Cache[string, []Hit]
}

// NewLRUCache returns a cache holding at most size queries.
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[string, []Hit](size)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(query string) ([]Hit, bool) {
	return c.entries.Get(query)
}

func (c *LRUCache) Add(query string, hits []Hit) {
	c.entries.Add(query, hits)
}

func (c *LRUCache) Purge() {
	c.entries.Purge()
}

// Len reports the number of cached queries.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

type noopCache struct{}

func (noopCache) Get(string) ([]Hit, bool) { return nil, false }
func (noopCache) Add(string, []Hit)        {}
func (noopCache) Purge()                   {}
