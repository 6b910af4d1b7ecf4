package price

import (
	"context"
	"net/http"
	"net/url"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/lib/request"
)

// Finnhub reads the current price from the /quote endpoint.
type Finnhub struct {
	BaseURL string
	token   string
	client  *http.Client
}

func NewFinnhub(token string, client *http.Client) *Finnhub {
	return &Finnhub{BaseURL: "https://finnhub.io", token: token, client: client}
}

func (f *Finnhub) Name() string { return "Finnhub" }

func (f *Finnhub) Fetch(ctx context.Context, symbol string) (float64, bool) {
	return fetchLogged(f.Name(), symbol, func() (float64, error) {
		return f.quote(ctx, symbol)
	})
}

func (f *Finnhub) quote(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", f.token)

	var payload struct {
		Current *float64 `json:"c"`
		Error   string   `json:"error"`
	}
	if err := request.GetJSON(ctx, f.client, f.BaseURL+"/api/v1/quote?"+q.Encode(), &payload); err != nil {
		return 0, err
	}
	// unknown symbols come back as all zero fields
	if payload.Current == nil || *payload.Current <= 0 {
		log.Debugf("Finnhub payload for %s: %s", symbol, spew.Sdump(payload))
		if payload.Error != "" {
			return 0, errors.Errorf("price not found: %s", payload.Error)
		}
		return 0, errors.New("price not found in response")
	}
	return *payload.Current, nil
}
