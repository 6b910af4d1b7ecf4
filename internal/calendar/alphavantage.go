package calendar

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/request"
	"market-telegram-bot/lib/translation"
)

const alphaVantageURL = "https://www.alphavantage.co"

// AlphaVantageEarnings reads the three month EARNINGS_CALENDAR, served as CSV.
type AlphaVantageEarnings struct {
	BaseURL string
	apiKey  string
	client  *http.Client
}

func NewAlphaVantageEarnings(apiKey string, client *http.Client) *AlphaVantageEarnings {
	return &AlphaVantageEarnings{BaseURL: alphaVantageURL, apiKey: apiKey, client: client}
}

func (a *AlphaVantageEarnings) Name() string { return "Alpha Vantage earnings" }

func (a *AlphaVantageEarnings) Fetch(ctx context.Context) ([]types.Event, error) {
	q := url.Values{}
	q.Set("function", "EARNINGS_CALENDAR")
	q.Set("horizon", "3month")
	q.Set("apikey", a.apiKey)

	body, err := request.Get(ctx, a.client, a.BaseURL+"/query?"+q.Encode())
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		log.Warn("Alpha Vantage earnings calendar is empty")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "malformed earnings csv")
	}
	// rate limit notices come back as a JSON body instead of CSV
	if len(header) < 6 {
		return nil, errors.Errorf("unexpected earnings payload: %s", request.Truncate(string(body), 200))
	}

	var events []types.Event
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Warn("Skipping malformed earnings line")
			continue
		}
		if len(record) < 6 {
			log.Warnf("Skipping short earnings line %v", record)
			continue
		}
		symbol, name, reportDate, fiscalDate, estimate, currency := record[0], record[1], record[2], record[3], record[4], record[5]

		date, err := parseDate(reportDate)
		if err != nil {
			log.WithError(err).Warnf("Skipping earnings of %s", symbol)
			continue
		}
		if strings.TrimSpace(estimate) == "" {
			estimate = "n/a"
		}
		events = append(events, types.Event{
			EventDate: date,
			Title:     translation.Translate("Earnings report for %s", symbol),
			Description: translation.Translate("Company: %s, expected EPS: %s %s, fiscal date: %s",
				name, estimate, currency, fiscalDate),
			Source: "Alpha Vantage",
			Type:   types.EventEarnings,
			Symbol: symbol,
		})
	}
	return events, nil
}

type macroIndicator struct {
	function string
	interval string
	title    string
}

var macroIndicators = []macroIndicator{
	{function: "REAL_GDP", interval: "annual", title: "Real GDP"},
	{function: "CPI", interval: "monthly", title: "Consumer Price Index (CPI)"},
}

// AlphaVantageMacro reads the published series of a few macro indicators.
type AlphaVantageMacro struct {
	BaseURL string
	apiKey  string
	client  *http.Client
}

func NewAlphaVantageMacro(apiKey string, client *http.Client) *AlphaVantageMacro {
	return &AlphaVantageMacro{BaseURL: alphaVantageURL, apiKey: apiKey, client: client}
}

func (a *AlphaVantageMacro) Name() string { return "Alpha Vantage macro" }

// Fetch returns the indicators it could load; it fails only if none could.
func (a *AlphaVantageMacro) Fetch(ctx context.Context) ([]types.Event, error) {
	var (
		events  []types.Event
		lastErr error
		loaded  int
	)
	for _, ind := range macroIndicators {
		series, err := a.indicator(ctx, ind)
		if err != nil {
			log.WithError(err).Warnf("Could not load %s", ind.function)
			lastErr = err
			continue
		}
		loaded++
		events = append(events, series...)
	}
	if loaded == 0 && lastErr != nil {
		return nil, lastErr
	}
	return events, nil
}

func (a *AlphaVantageMacro) indicator(ctx context.Context, ind macroIndicator) ([]types.Event, error) {
	q := url.Values{}
	q.Set("function", ind.function)
	q.Set("interval", ind.interval)
	q.Set("apikey", a.apiKey)

	var payload struct {
		Data []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"data"`
		Note        string `json:"Note"`
		Information string `json:"Information"`
	}
	if err := request.GetJSON(ctx, a.client, a.BaseURL+"/query?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return nil, errors.Errorf("%s has no data: %s", ind.function, strings.TrimSpace(payload.Note+" "+payload.Information))
	}

	events := make([]types.Event, 0, len(payload.Data))
	for _, item := range payload.Data {
		date, err := parseDate(item.Date)
		if err != nil {
			log.WithError(err).Warnf("Skipping %s item", ind.function)
			continue
		}
		events = append(events, types.Event{
			EventDate:   date,
			Title:       translation.Translate(ind.title),
			Description: translation.Translate("Value: %s", item.Value),
			Source:      "Alpha Vantage",
			Type:        types.EventMacro,
		})
	}
	return events, nil
}
