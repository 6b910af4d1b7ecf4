package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAlphaVantageFetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		if r.URL.Query().Get("symbol") == "AAPL" {
			w.Write([]byte(`{"Global Quote":{"01. symbol":"AAPL","05. price":"151.2500"}}`))
			return
		}
		w.Write([]byte(`{"Note":"Thank you for using Alpha Vantage! rate limit"}`))
	})
	av := NewAlphaVantage("key", srv.Client())
	av.BaseURL = srv.URL

	price, ok := av.Fetch(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, 151.25, price)

	_, ok = av.Fetch(context.Background(), "MSFT")
	assert.False(t, ok)
}

func TestFinnhubFetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/quote", r.URL.Path)
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			w.Write([]byte(`{"c":151.25,"h":152,"l":149,"o":150,"pc":149.5}`))
		case "NOPE":
			w.Write([]byte(`{"c":0,"h":0,"l":0,"o":0,"pc":0}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	})
	f := NewFinnhub("token", srv.Client())
	f.BaseURL = srv.URL

	price, ok := f.Fetch(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, 151.25, price)

	_, ok = f.Fetch(context.Background(), "NOPE")
	assert.False(t, ok)
	_, ok = f.Fetch(context.Background(), "LIMITED")
	assert.False(t, ok)
}

func TestEODHDFetch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/real-time/AAPL.US":
			w.Write([]byte(`{"code":"AAPL.US","close":151.25}`))
		case "/api/real-time/SAP.XETRA":
			w.Write([]byte(`{"code":"SAP.XETRA","close":"NA"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	e := NewEODHD("token", srv.Client())
	e.BaseURL = srv.URL

	price, ok := e.Fetch(context.Background(), "aapl")
	require.True(t, ok)
	assert.Equal(t, 151.25, price)

	_, ok = e.Fetch(context.Background(), "SAP.XETRA")
	assert.False(t, ok)
}

const yahooPayload = `{"chart":{"result":[{
	"meta":{"regularMarketPrice":151.25,"chartPreviousClose":140.0},
	"timestamp":[1714521600,1714608000,1714694400],
	"indicators":{"quote":[{"close":[148.5,null,150.0]}]}
}],"error":null}}`

func TestYahooQuoteAndHistory(t *testing.T) {
	var paths []string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(yahooPayload))
	})
	y := NewYahoo(srv.Client())
	y.BaseURL = srv.URL
	y.now = func() time.Time { return time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC) }

	q, err := y.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 151.25, q.Price)
	assert.Equal(t, 148.5, q.PreviousClose)
	assert.InDelta(t, 1.85, q.ChangePercent(), 0.01)

	points, err := y.History(context.Background(), "SBER", 7)
	require.NoError(t, err)
	require.Len(t, points, 2, "null closes are skipped")
	assert.Equal(t, 150.0, points[1].Price)

	assert.Equal(t, []string{"/v8/finance/chart/AAPL", "/v8/finance/chart/SBER.ME"}, paths)
}

func TestYahooError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	})
	y := NewYahoo(srv.Client())
	y.BaseURL = srv.URL

	_, ok := y.Fetch(context.Background(), "ZZZZ")
	assert.False(t, ok)
}

func TestBinanceFetchAndHistory(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		switch r.URL.Path {
		case "/api/v3/ticker/price":
			w.Write([]byte(`{"symbol":"BTCUSDT","price":"64250.50000000"}`))
		case "/api/v3/klines":
			assert.Equal(t, "7", r.URL.Query().Get("limit"))
			w.Write([]byte(`[[1714521600000,"60000","61000","59000","60500","10",1714607999999,"0",1,"0","0","0"],
				[1714608000000,"60500","65000","60000","64250.5","12",1714694399999,"0",1,"0","0","0"]]`))
		}
	})
	b := NewBinance(srv.Client())
	b.BaseURL = srv.URL

	price, ok := b.Fetch(context.Background(), "btc")
	require.True(t, ok)
	assert.Equal(t, 64250.5, price)

	points, err := b.History(context.Background(), "BTC/USDT", 7)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 60500.0, points[0].Price)
	assert.Equal(t, time.UnixMilli(1714608000000).UTC(), points[1].Time)
}

func TestBinancePair(t *testing.T) {
	cases := map[string]string{
		"btc":      "BTCUSDT",
		"BTC/USDT": "BTCUSDT",
		"eth-btc":  "ETHBTC",
		"ETHUSDC":  "ETHUSDC",
		"USDT":     "USDTUSDT",
		" sol ":    "SOLUSDT",
	}
	for in, want := range cases {
		assert.Equal(t, want, BinancePair(in), in)
	}
}

func TestBaseAsset(t *testing.T) {
	assert.Equal(t, "BTC", baseAsset("btc/usdt"))
	assert.Equal(t, "ETH", baseAsset("ETH-USD"))
	assert.Equal(t, "SOL", baseAsset("sol"))
}

func TestFetchLoggedRejectsUnusablePrices(t *testing.T) {
	_, ok := fetchLogged("p", "S", func() (float64, error) { return 0, nil })
	assert.False(t, ok)
	_, ok = fetchLogged("p", "S", func() (float64, error) { return -1, nil })
	assert.False(t, ok)
	price, ok := fetchLogged("p", "S", func() (float64, error) { return 2.5, nil })
	assert.True(t, ok)
	assert.Equal(t, 2.5, price)
}

func TestNewProvidersRegistersConfiguredUpstreams(t *testing.T) {
	p := NewProviders(ProvidersConfig{FinnhubKey: "x"})
	require.Len(t, p.Stock, 2)
	assert.Equal(t, "Finnhub", p.Stock[0].Name())
	assert.Equal(t, "Yahoo Finance", p.Stock[1].Name())
	assert.Equal(t, "Binance", p.Crypto.Name())

	p = NewProviders(ProvidersConfig{AlphaVantageKey: "a", EODHDKey: "e", CryptoProvider: "CoinPaprika"})
	assert.Len(t, p.Stock, 3)
	assert.Equal(t, "CoinPaprika", p.Crypto.Name())
}
