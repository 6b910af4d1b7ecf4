package price

import (
	"context"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/metrics"
	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/helpers"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = 5 * time.Second
)

type ResolverConfig struct {
	Stock  []Provider
	Crypto Provider
	Cache  *Cache
	// Rand orders stock providers. A time seeded source is used when nil.
	Rand *rand.Rand
	// Sleep waits between retry attempts. helpers.Sleep when nil.
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *metrics.Metrics
}

// Resolver turns (symbol, asset type) into a price using the cache, then the
// providers of that asset type.
type Resolver struct {
	stock   []Provider
	crypto  Provider
	cache   *Cache
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewResolver(c ResolverConfig) *Resolver {
	r := &Resolver{
		stock:   append([]Provider(nil), c.Stock...),
		crypto:  c.Crypto,
		cache:   c.Cache,
		sleep:   c.Sleep,
		metrics: c.Metrics,
		rand:    c.Rand,
	}
	if r.cache == nil {
		r.cache = NewCache(DefaultStockTTL, DefaultCryptoTTL)
	}
	if r.sleep == nil {
		r.sleep = helpers.Sleep
	}
	if r.rand == nil {
		r.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r
}

func (r *Resolver) Cache() *Cache { return r.cache }

// Sweep drops expired cache entries.
func (r *Resolver) Sweep() int {
	removed := r.cache.Sweep()
	if removed > 0 {
		log.Debugf("Price cache sweep removed %d entries, %d left", removed, r.cache.Len())
	}
	return removed
}

// GetPrice returns a fresh cached price or asks the providers once.
// Stock providers are tried in random order until one answers.
func (r *Resolver) GetPrice(ctx context.Context, symbol string, assetType types.AssetType) (float64, bool) {
	symbol = normalizeSymbol(symbol)
	if assetType != types.Stock && assetType != types.Crypto {
		log.WithField("symbol", symbol).Errorf("Unknown asset type %q", assetType)
		return 0, false
	}
	if symbol == "" {
		return 0, false
	}

	if price, ok := r.cache.Fresh(assetType, symbol); ok {
		r.metrics.ObserveCacheLookup(string(assetType), true)
		log.WithFields(log.Fields{"symbol": symbol, "asset_type": assetType}).Debug("Price served from cache")
		return price, true
	}
	r.metrics.ObserveCacheLookup(string(assetType), false)

	var providers []Provider
	if assetType == types.Stock {
		providers = r.shuffled()
	} else if r.crypto != nil {
		providers = []Provider{r.crypto}
	}

	for _, p := range providers {
		if ctx.Err() != nil {
			return 0, false
		}
		price, ok := r.fetch(ctx, p, symbol)
		if !ok {
			r.metrics.ObserveFetch(p.Name(), "failure")
			continue
		}
		r.metrics.ObserveFetch(p.Name(), "success")
		r.cache.Put(assetType, symbol, price)
		return price, true
	}

	log.WithFields(log.Fields{"symbol": symbol, "asset_type": assetType}).Warn("No provider returned a price")
	return 0, false
}

// GetPriceWithRetry calls GetPrice up to retries times, sleeping delay
// between failed attempts but never after the last one.
func (r *Resolver) GetPriceWithRetry(ctx context.Context, symbol string, assetType types.AssetType, retries int, delay time.Duration) (float64, bool) {
	if retries < 1 {
		retries = 1
	}
	for attempt := 1; attempt <= retries; attempt++ {
		if price, ok := r.GetPrice(ctx, symbol, assetType); ok {
			return price, true
		}
		if attempt == retries {
			break
		}
		log.WithFields(log.Fields{"symbol": symbol, "attempt": attempt}).Debugf("Price unavailable, retrying in %s", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return 0, false
		}
	}
	return 0, false
}

func (r *Resolver) shuffled() []Provider {
	providers := append([]Provider(nil), r.stock...)

	r.randMu.Lock()
	r.rand.Shuffle(len(providers), func(i, j int) {
		providers[i], providers[j] = providers[j], providers[i]
	})
	r.randMu.Unlock()
	return providers
}

// fetch shields the resolver from a provider that panics.
func (r *Resolver) fetch(ctx context.Context, p Provider, symbol string) (price float64, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{"provider": p.Name(), "symbol": symbol}).Errorf("Provider panicked: %v", rec)
			price, ok = 0, false
		}
	}()
	return p.Fetch(ctx, symbol)
}
