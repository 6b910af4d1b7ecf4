package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/request"
)

// Moscow exchange tickers are listed on Yahoo with a .ME suffix.
var moexSymbols = map[string]bool{"SBER": true, "GAZP": true, "LKOH": true}

// Quote is a current price together with the previous session close.
type Quote struct {
	Price         float64
	PreviousClose float64
}

// ChangePercent is the move since the previous close, 0 when unknown.
func (q Quote) ChangePercent() float64 {
	if q.PreviousClose == 0 {
		return 0
	}
	return (q.Price - q.PreviousClose) / q.PreviousClose * 100
}

// Yahoo reads prices from the Yahoo Finance chart API. It needs no key.
type Yahoo struct {
	BaseURL string
	client  *http.Client
	now     func() time.Time
}

func NewYahoo(client *http.Client) *Yahoo {
	return &Yahoo{BaseURL: "https://query1.finance.yahoo.com", client: client, now: time.Now}
}

func (y *Yahoo) Name() string { return "Yahoo Finance" }

func (y *Yahoo) Fetch(ctx context.Context, symbol string) (float64, bool) {
	return fetchLogged(y.Name(), symbol, func() (float64, error) {
		q, err := y.Quote(ctx, symbol)
		return q.Price, err
	})
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func yahooSymbol(symbol string) string {
	symbol = normalizeSymbol(symbol)
	if moexSymbols[symbol] {
		return symbol + ".ME"
	}
	return symbol
}

func (y *Yahoo) chart(ctx context.Context, symbol string, q url.Values) (*yahooChart, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.BaseURL, url.PathEscape(yahooSymbol(symbol)), q.Encode())

	var payload yahooChart
	if err := request.GetJSON(ctx, y.client, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.Chart.Error != nil {
		return nil, errors.Errorf("yahoo error %s: %s", payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		log.Debugf("Yahoo payload for %s: %s", symbol, spew.Sdump(payload))
		return nil, errors.New("empty chart result")
	}
	return &payload, nil
}

// Quote returns the regular market price and the previous close.
func (y *Yahoo) Quote(ctx context.Context, symbol string) (Quote, error) {
	q := url.Values{}
	q.Set("range", "5d")
	q.Set("interval", "1d")

	payload, err := y.chart(ctx, symbol, q)
	if err != nil {
		return Quote{}, err
	}
	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return Quote{}, errors.New("price not found in response")
	}

	prev := meta.PreviousClose
	if prev == 0 {
		prev = meta.ChartPreviousClose
	}
	// with a multi-day range the chart base is days old, prefer the last completed close
	if closes := closesOf(payload); len(closes) >= 2 {
		prev = closes[len(closes)-2].Price
	}
	return Quote{Price: meta.RegularMarketPrice, PreviousClose: prev}, nil
}

// History returns the daily closes of the last days.
func (y *Yahoo) History(ctx context.Context, symbol string, days int) ([]types.PricePoint, error) {
	now := y.now()
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", now.AddDate(0, 0, -days).Unix()))
	q.Set("period2", fmt.Sprintf("%d", now.Unix()))
	q.Set("interval", "1d")

	payload, err := y.chart(ctx, symbol, q)
	if err != nil {
		return nil, errors.Wrapf(err, "history of %s", symbol)
	}
	points := closesOf(payload)
	if len(points) == 0 {
		return nil, errors.Errorf("no history for %s", symbol)
	}
	return points, nil
}

func closesOf(payload *yahooChart) []types.PricePoint {
	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	closes := result.Indicators.Quote[0].Close

	var points []types.PricePoint
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, types.PricePoint{Time: time.Unix(ts, 0).UTC(), Price: *closes[i]})
	}
	return points
}
