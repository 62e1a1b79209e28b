package transliterate

import (
	"context"
	"sync"
)

const DefaultMemoryEntries = 1000

// MemoryCache is a bounded FIFO cache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]string
	order   []string
}

func NewMemoryCache(max int) *MemoryCache {
	if max <= 0 {
		max = DefaultMemoryEntries
	}
	return &MemoryCache{max: max, entries: make(map[string]string)}
}

func (c *MemoryCache) GetTransliteration(_ context.Context, text string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[text]
	return v, ok, nil
}

func (c *MemoryCache) SetTransliteration(_ context.Context, text, roman string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[text]; !ok {
		c.order = append(c.order, text)
	}
	c.entries[text] = roman
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
