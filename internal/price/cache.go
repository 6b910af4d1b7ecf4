package price

import (
	"strings"
	"sync"
	"time"

	"market-telegram-bot/internal/types"
)

const (
	DefaultStockTTL  = 600 * time.Second
	DefaultCryptoTTL = 120 * time.Second
)

// CachedPrice is the last successfully fetched price of a symbol.
type CachedPrice struct {
	Price     float64
	FetchedAt time.Time
}

type cacheKey struct {
	assetType types.AssetType
	symbol    string
}

// Cache keeps the latest price per (asset type, symbol). Entries expire per
// asset type; reads never delete, Sweep does.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]CachedPrice
	ttl     map[types.AssetType]time.Duration
	now     func() time.Time
}

// NewCache creates a cache. Zero TTLs fall back to the defaults.
func NewCache(stockTTL, cryptoTTL time.Duration) *Cache {
	if stockTTL <= 0 {
		stockTTL = DefaultStockTTL
	}
	if cryptoTTL <= 0 {
		cryptoTTL = DefaultCryptoTTL
	}
	return &Cache{
		entries: make(map[cacheKey]CachedPrice),
		ttl: map[types.AssetType]time.Duration{
			types.Stock:  stockTTL,
			types.Crypto: cryptoTTL,
		},
		now: time.Now,
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// TTL returns the expiry of an asset type, 0 for unknown types.
func (c *Cache) TTL(assetType types.AssetType) time.Duration {
	return c.ttl[assetType]
}

// Get returns the cached entry and its age regardless of freshness.
func (c *Cache) Get(assetType types.AssetType, symbol string) (CachedPrice, time.Duration, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey{assetType, normalizeSymbol(symbol)}]
	c.mu.RUnlock()
	if !ok {
		return CachedPrice{}, 0, false
	}
	return entry, c.now().Sub(entry.FetchedAt), true
}

// Fresh returns the cached price only while it is younger than the TTL.
func (c *Cache) Fresh(assetType types.AssetType, symbol string) (float64, bool) {
	entry, age, ok := c.Get(assetType, symbol)
	if !ok || age >= c.TTL(assetType) {
		return 0, false
	}
	return entry.Price, true
}

// Put stores price with the current time, overwriting any previous entry.
func (c *Cache) Put(assetType types.AssetType, symbol string, price float64) {
	c.mu.Lock()
	c.entries[cacheKey{assetType, normalizeSymbol(symbol)}] = CachedPrice{Price: price, FetchedAt: c.now()}
	c.mu.Unlock()
}

// Sweep drops entries older than their expiry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.FetchedAt) > c.ttl[key.assetType] {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
