package commands

import (
	"sync"
	"time"
)

type cachedResponse struct {
	Data       []byte
	Text       string
	Expiration time.Time
}

// responseCache keeps rendered replies that are expensive to build.
type responseCache struct {
	mu    sync.Mutex
	items map[string]cachedResponse
	now   func() time.Time
}

func newResponseCache() *responseCache {
	return &responseCache{items: make(map[string]cachedResponse), now: time.Now}
}

func (c *responseCache) get(key string) (cachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return cachedResponse{}, false
	}
	if !c.now().Before(item.Expiration) {
		delete(c.items, key)
		return cachedResponse{}, false
	}
	return item, true
}

func (c *responseCache) set(key string, data []byte, text string, duration time.Duration) {
	c.mu.Lock()
	c.items[key] = cachedResponse{Data: data, Text: text, Expiration: c.now().Add(duration)}
	c.mu.Unlock()
}
