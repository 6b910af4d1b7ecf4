package price

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/request"
)

var binanceQuotes = []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// Binance reads spot prices from the public Binance REST API.
type Binance struct {
	BaseURL string
	client  *http.Client
}

func NewBinance(client *http.Client) *Binance {
	return &Binance{BaseURL: "https://api.binance.com", client: client}
}

func (b *Binance) Name() string { return "Binance" }

// BinancePair turns "btc", "BTC/USDT" or "eth-btc" into an exchange pair.
// Bare bases are quoted in USDT.
func BinancePair(symbol string) string {
	pair := normalizeSymbol(symbol)
	pair = strings.NewReplacer("/", "", "-", "", " ", "").Replace(pair)
	for _, quote := range binanceQuotes {
		if strings.HasSuffix(pair, quote) && len(pair) > len(quote) {
			return pair
		}
	}
	return pair + "USDT"
}

func (b *Binance) Fetch(ctx context.Context, symbol string) (float64, bool) {
	return fetchLogged(b.Name(), symbol, func() (float64, error) {
		return b.ticker(ctx, symbol)
	})
}

func (b *Binance) ticker(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", BinancePair(symbol))

	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := request.GetJSON(ctx, b.client, b.BaseURL+"/api/v3/ticker/price?"+q.Encode(), &payload); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid price %q", payload.Price)
	}
	return price, nil
}

// History returns daily closes from the klines endpoint.
func (b *Binance) History(ctx context.Context, symbol string, days int) ([]types.PricePoint, error) {
	q := url.Values{}
	q.Set("symbol", BinancePair(symbol))
	q.Set("interval", "1d")
	q.Set("limit", strconv.Itoa(days))

	var klines [][]any
	if err := request.GetJSON(ctx, b.client, b.BaseURL+"/api/v3/klines?"+q.Encode(), &klines); err != nil {
		return nil, errors.Wrapf(err, "history of %s", symbol)
	}

	points := make([]types.PricePoint, 0, len(klines))
	for _, k := range klines {
		if len(k) < 5 {
			continue
		}
		openTime, ok := k[0].(float64)
		if !ok {
			continue
		}
		raw, ok := k[4].(string)
		if !ok {
			continue
		}
		closePrice, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		points = append(points, types.PricePoint{Time: time.UnixMilli(int64(openTime)).UTC(), Price: closePrice})
	}
	if len(points) == 0 {
		return nil, errors.Errorf("no history for %s", symbol)
	}
	return points, nil
}
