package price

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
)

// CoinPaprika resolves coins through the CoinPaprika search API and reads
// their USD quote. Resolved coin ids are remembered for the process lifetime.
type CoinPaprika struct {
	client *coinpaprika.Client

	mu  sync.RWMutex
	ids map[string]string
}

func NewCoinPaprika(apiKey string, httpClient *http.Client) *CoinPaprika {
	var client *coinpaprika.Client
	if apiKey != "" {
		client = coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiKey))
	} else {
		client = coinpaprika.NewClient(httpClient)
	}
	return &CoinPaprika{client: client, ids: make(map[string]string)}
}

func (c *CoinPaprika) Name() string { return "CoinPaprika" }

// baseAsset strips a quote currency: "BTC/USDT" and "btc-usd" both give "BTC".
func baseAsset(symbol string) string {
	symbol = normalizeSymbol(symbol)
	if i := strings.IndexAny(symbol, "/-"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

func (c *CoinPaprika) Fetch(ctx context.Context, symbol string) (float64, bool) {
	return fetchLogged(c.Name(), symbol, func() (float64, error) {
		return c.ticker(ctx, symbol)
	})
}

func (c *CoinPaprika) ticker(ctx context.Context, symbol string) (float64, error) {
	id, err := c.coinID(ctx, symbol)
	if err != nil {
		return 0, err
	}
	ticker, err := c.client.Tickers.GetByID(id, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return 0, errors.Wrapf(err, "ticker %s", id)
	}
	usd, ok := ticker.Quotes["USD"]
	if !ok || usd.Price == nil {
		return 0, errors.Errorf("no USD quote for %s", id)
	}
	return *usd.Price, nil
}

// History returns daily USD prices of the coin.
func (c *CoinPaprika) History(ctx context.Context, symbol string, days int) ([]types.PricePoint, error) {
	id, err := c.coinID(ctx, symbol)
	if err != nil {
		return nil, err
	}
	tickers, err := c.client.Tickers.GetHistoricalTickersByID(id, &coinpaprika.TickersHistoricalOptions{
		Start:    time.Now().AddDate(0, 0, -days),
		Interval: "1d",
		Quote:    "USD",
		Limit:    days + 1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "history of %s", id)
	}

	points := make([]types.PricePoint, 0, len(tickers))
	for _, t := range tickers {
		if t.Timestamp == nil || t.Price == nil {
			continue
		}
		points = append(points, types.PricePoint{Time: t.Timestamp.UTC(), Price: *t.Price})
	}
	if len(points) == 0 {
		return nil, errors.Errorf("no history for %s", symbol)
	}
	return points, nil
}

func (c *CoinPaprika) coinID(ctx context.Context, symbol string) (string, error) {
	base := baseAsset(symbol)

	c.mu.RLock()
	id, ok := c.ids[base]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	coin, err := c.search(base)
	if err != nil {
		return "", err
	}
	log.Debugf("Best match for query '%s' is: %s", base, *coin.ID)

	c.mu.Lock()
	c.ids[base] = *coin.ID
	c.mu.Unlock()
	return *coin.ID, nil
}

// search tries a symbol search first and falls back to a name search.
func (c *CoinPaprika) search(query string) (*coinpaprika.Coin, error) {
	opts := &coinpaprika.SearchOptions{Query: query, Categories: "currencies", Modifier: "symbol_search"}
	result, err := c.client.Search.Search(opts)
	if err != nil || len(result.Currencies) == 0 {
		log.Debugf("No results for symbol search, trying name search for '%s'", query)
		result, err = c.client.Search.Search(&coinpaprika.SearchOptions{Query: query, Categories: "currencies"})
		if err != nil || len(result.Currencies) == 0 {
			return nil, errors.Errorf("invalid coin name, ticker, or symbol: %s", query)
		}
	}
	if result.Currencies[0].ID == nil {
		return nil, errors.Errorf("coin without id for %s", query)
	}
	return result.Currencies[0], nil
}
