package source

import (
	"context"
	"sync"

	"github.com/bandham-manikanta/qa-system/internal/domain"
)

// Fetcher fetches the full corpus from the remote source.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]domain.Message, error)
}

// Cache holds the last successfully fetched corpus in memory for the process
// lifetime. It is not persisted; after a restart the first Get re-fetches.
type Cache struct {
	mu       sync.Mutex
	fetcher  Fetcher
	messages []domain.Message
	loaded   bool
}

// NewCache creates a corpus cache over the given fetcher.
func NewCache(fetcher Fetcher) *Cache {
	return &Cache{fetcher: fetcher}
}

// Get returns the cached corpus, fetching on first use or when forceRefresh
// is set.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && !forceRefresh {
		return c.messages, nil
	}
	messages, err := c.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	c.messages = messages
	c.loaded = true
	return c.messages, nil
}
