package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/lib/request"
)

// EODHD reads real-time (delayed) quotes from eodhd.com.
type EODHD struct {
	BaseURL string
	token   string
	client  *http.Client
}

func NewEODHD(token string, client *http.Client) *EODHD {
	return &EODHD{BaseURL: "https://eodhd.com", token: token, client: client}
}

func (e *EODHD) Name() string { return "EODHD" }

func (e *EODHD) Fetch(ctx context.Context, symbol string) (float64, bool) {
	return fetchLogged(e.Name(), symbol, func() (float64, error) {
		return e.quote(ctx, symbol)
	})
}

// eodhdTicker qualifies bare tickers with the US exchange.
func eodhdTicker(symbol string) string {
	symbol = normalizeSymbol(symbol)
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".US"
}

func (e *EODHD) quote(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("api_token", e.token)
	q.Set("fmt", "json")
	endpoint := fmt.Sprintf("%s/api/real-time/%s?%s", e.BaseURL, url.PathEscape(eodhdTicker(symbol)), q.Encode())

	// close is a number, or the string "NA" outside trading data
	var payload map[string]any
	if err := request.GetJSON(ctx, e.client, endpoint, &payload); err != nil {
		return 0, err
	}
	switch v := payload["close"].(type) {
	case float64:
		return v, nil
	case string:
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.Errorf("price not available: %q", v)
		}
		return price, nil
	default:
		log.Debugf("EODHD payload for %s: %s", symbol, spew.Sdump(payload))
		return 0, errors.New("price not found in response")
	}
}
