package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"price":"1.5"}`))
		case "/broken":
			w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("slow down"))
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	var out struct {
		Price string `json:"price"`
	}
	require.NoError(t, GetJSON(ctx, srv.Client(), srv.URL+"/ok", &out))
	assert.Equal(t, "1.5", out.Price)

	assert.Error(t, GetJSON(ctx, srv.Client(), srv.URL+"/broken", &out))

	err := GetJSON(ctx, srv.Client(), srv.URL+"/limited", &out)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Equal(t, "slow down", statusErr.Body)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))

	cut := Truncate("привет", 3)
	assert.Equal(t, "п...", cut)
	assert.True(t, utf8.ValidString(cut))
}

func TestTransportErrorHidesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/query?apikey=SECRETKEY123&function=GLOBAL_QUOTE&symbol=AAPL"
	srv.Close()

	_, err := Get(context.Background(), http.DefaultClient, endpoint)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRETKEY123")
	assert.Contains(t, err.Error(), "apikey=REDACTED")
	assert.Contains(t, err.Error(), "symbol=AAPL")
}

func TestCancelledRequestKeepsCause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Get(ctx, http.DefaultClient, "http://127.0.0.1:1/api?token=abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "token=abc")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://eodhd.com/api/div/AAPL.US?api_token=REDACTED&fmt=json",
		Redact("https://eodhd.com/api/div/AAPL.US?api_token=s3cr3t&fmt=json"))
	assert.Equal(t, "https://finnhub.io/api/v1/quote?symbol=AAPL&token=REDACTED",
		Redact("https://finnhub.io/api/v1/quote?symbol=AAPL&token=abc"))
	assert.Equal(t, "https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT",
		Redact("https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT"))
}
