package price

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/lib/request"
)

// AlphaVantage reads GLOBAL_QUOTE prices.
type AlphaVantage struct {
	BaseURL string
	apiKey  string
	client  *http.Client
}

func NewAlphaVantage(apiKey string, client *http.Client) *AlphaVantage {
	return &AlphaVantage{BaseURL: "https://www.alphavantage.co", apiKey: apiKey, client: client}
}

func (a *AlphaVantage) Name() string { return "Alpha Vantage" }

func (a *AlphaVantage) Fetch(ctx context.Context, symbol string) (float64, bool) {
	return fetchLogged(a.Name(), symbol, func() (float64, error) {
		return a.quote(ctx, symbol)
	})
}

func (a *AlphaVantage) quote(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)

	var payload struct {
		GlobalQuote map[string]string `json:"Global Quote"`
		Note        string            `json:"Note"`
		Information string            `json:"Information"`
	}
	if err := request.GetJSON(ctx, a.client, a.BaseURL+"/query?"+q.Encode(), &payload); err != nil {
		return 0, err
	}

	raw, ok := payload.GlobalQuote["05. price"]
	if !ok {
		log.Debugf("Alpha Vantage payload for %s: %s", symbol, spew.Sdump(payload))
		if msg := strings.TrimSpace(payload.Note + " " + payload.Information); msg != "" {
			return 0, errors.Errorf("price not found: %s", msg)
		}
		return 0, errors.New("price not found in response")
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid price %q", raw)
	}
	return price, nil
}
