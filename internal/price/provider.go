package price

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
)

// Provider fetches the current price of one symbol from a single upstream.
// Fetch never panics on upstream errors; failures are logged and reported
// as ok == false.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (float64, bool)
}

// HistorySource returns daily closing prices for the last days.
type HistorySource interface {
	History(ctx context.Context, symbol string, days int) ([]types.PricePoint, error)
}

type ProvidersConfig struct {
	AlphaVantageKey string
	FinnhubKey      string
	EODHDKey        string
	CoinPaprikaKey  string
	CryptoProvider  string // "binance" or "coinpaprika"
	Timeout         time.Duration
}

// Providers is the set of upstreams built from configuration.
type Providers struct {
	Stock         []Provider
	Crypto        Provider
	Yahoo         *Yahoo
	StockHistory  HistorySource
	CryptoHistory HistorySource
}

// NewProviders registers every stock provider whose credentials are
// configured plus the selected crypto provider.
func NewProviders(c ProvidersConfig) *Providers {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: c.Timeout}

	yahoo := NewYahoo(client)
	p := &Providers{Yahoo: yahoo, StockHistory: yahoo}

	if c.AlphaVantageKey != "" {
		p.Stock = append(p.Stock, NewAlphaVantage(c.AlphaVantageKey, client))
	}
	if c.FinnhubKey != "" {
		p.Stock = append(p.Stock, NewFinnhub(c.FinnhubKey, client))
	}
	if c.EODHDKey != "" {
		p.Stock = append(p.Stock, NewEODHD(c.EODHDKey, client))
	}
	p.Stock = append(p.Stock, yahoo)

	switch strings.ToLower(c.CryptoProvider) {
	case "coinpaprika":
		paprika := NewCoinPaprika(c.CoinPaprikaKey, client)
		p.Crypto, p.CryptoHistory = paprika, paprika
	default:
		binance := NewBinance(client)
		p.Crypto, p.CryptoHistory = binance, binance
	}

	names := make([]string, 0, len(p.Stock))
	for _, sp := range p.Stock {
		names = append(names, sp.Name())
	}
	log.WithFields(log.Fields{"stock": names, "crypto": p.Crypto.Name()}).Info("Price providers registered")
	return p
}

// fetchLogged runs one upstream quote and turns any failure into ok == false.
func fetchLogged(provider, symbol string, quote func() (float64, error)) (float64, bool) {
	entry := log.WithFields(log.Fields{"provider": provider, "symbol": symbol})

	price, err := quote()
	if err != nil {
		entry.WithError(err).Warn("Price fetch failed")
		return 0, false
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		entry.Warnf("Provider returned unusable price %v", price)
		return 0, false
	}
	entry.Debugf("Price fetched: %v", price)
	return price, true
}
