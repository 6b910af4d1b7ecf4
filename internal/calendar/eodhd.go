package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/request"
	"market-telegram-bot/lib/translation"
)

const (
	eodhdURL   = "https://eodhd.com"
	dayLayout  = "2006-01-02"
	eodhdLabel = "EODHD"
)

type eodhdBase struct {
	BaseURL string
	token   string
	client  *http.Client
	now     func() time.Time
}

func newEODHDBase(token string, client *http.Client) eodhdBase {
	return eodhdBase{BaseURL: eodhdURL, token: token, client: client, now: time.Now}
}

// window returns the query parameters for [today, today+days].
func (b eodhdBase) window(days int) url.Values {
	now := b.now().UTC()
	q := url.Values{}
	q.Set("api_token", b.token)
	q.Set("from", now.Format(dayLayout))
	q.Set("to", now.AddDate(0, 0, days).Format(dayLayout))
	q.Set("fmt", "json")
	return q
}

// describe joins the non-empty labelled values or returns "No data".
func describe(parts ...string) string {
	var kept []string
	for i := 0; i+1 < len(parts); i += 2 {
		if parts[i+1] != "" {
			kept = append(kept, translation.Translate(parts[i], parts[i+1]))
		}
	}
	if len(kept) == 0 {
		return translation.Translate("No data")
	}
	return strings.Join(kept, ", ")
}

// value renders an optional upstream number or string.
func value(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

// EODHDEconomic reads the macro event calendar of the next 30 days.
type EODHDEconomic struct{ eodhdBase }

func NewEODHDEconomic(token string, client *http.Client) *EODHDEconomic {
	return &EODHDEconomic{newEODHDBase(token, client)}
}

func (e *EODHDEconomic) Name() string { return "EODHD economic events" }

func (e *EODHDEconomic) Fetch(ctx context.Context) ([]types.Event, error) {
	var payload []struct {
		Kind     string `json:"type"`
		Title    string `json:"event"`
		Date     string `json:"date"`
		Country  string `json:"country"`
		Code     string `json:"code"`
		Actual   any    `json:"actual"`
		Forecast any    `json:"estimate"`
		Previous any    `json:"previous"`
	}
	q := e.window(30)
	if err := request.GetJSON(ctx, e.client, e.BaseURL+"/api/economic-events?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, len(payload))
	for _, item := range payload {
		if item.Date == "" {
			log.Warnf("Skipping EODHD event without date: %s", item.Title)
			continue
		}
		date, err := parseDate(item.Date)
		if err != nil {
			log.WithError(err).Warn("Skipping EODHD event")
			continue
		}
		title := item.Title
		if title == "" {
			title = item.Kind
		}
		if title == "" {
			title = "Economic Event"
		}
		if item.Country != "" {
			title = fmt.Sprintf("%s (%s)", title, item.Country)
		}
		events = append(events, types.Event{
			EventDate: date,
			Title:     title,
			Description: describe(
				"Actual: %s", value(item.Actual),
				"Forecast: %s", value(item.Forecast),
				"Previous: %s", value(item.Previous),
			),
			Source: eodhdLabel,
			Type:   classify(title),
			Symbol: item.Code,
		})
	}
	return events, nil
}

// EODHDEarnings reads upcoming earnings reports of one symbol.
type EODHDEarnings struct{ eodhdBase }

func NewEODHDEarnings(token string, client *http.Client) *EODHDEarnings {
	return &EODHDEarnings{newEODHDBase(token, client)}
}

func (e *EODHDEarnings) Name() string { return "EODHD earnings" }

func (e *EODHDEarnings) FetchSymbol(ctx context.Context, symbol string) ([]types.Event, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var payload struct {
		Earnings []struct {
			Code        string `json:"code"`
			ReportDate  string `json:"report_date"`
			EPSActual   any    `json:"actual"`
			EPSEstimate any    `json:"estimate"`
		} `json:"earnings"`
	}
	q := e.window(90)
	q.Set("symbols", usTicker(symbol))
	if err := request.GetJSON(ctx, e.client, e.BaseURL+"/api/calendar/earnings?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, len(payload.Earnings))
	for _, item := range payload.Earnings {
		date, err := parseDate(item.ReportDate)
		if err != nil {
			log.WithError(err).Warnf("Skipping EODHD earnings of %s", symbol)
			continue
		}
		events = append(events, types.Event{
			EventDate: date,
			Title:     translation.Translate("Earnings report for %s", symbol),
			Description: describe(
				"EPS actual: %s", value(item.EPSActual),
				"EPS estimate: %s", value(item.EPSEstimate),
			),
			Source: eodhdLabel,
			Type:   types.EventEarnings,
			Symbol: symbol,
		})
	}
	return events, nil
}

// EODHDDividends reads upcoming dividend payments of one US symbol.
type EODHDDividends struct{ eodhdBase }

func NewEODHDDividends(token string, client *http.Client) *EODHDDividends {
	return &EODHDDividends{newEODHDBase(token, client)}
}

func (e *EODHDDividends) Name() string { return "EODHD dividends" }

func (e *EODHDDividends) FetchSymbol(ctx context.Context, symbol string) ([]types.Event, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var payload []struct {
		PaymentDate string `json:"paymentDate"`
		Value       any    `json:"value"`
		Currency    string `json:"currency"`
	}
	q := e.window(90)
	endpoint := fmt.Sprintf("%s/api/div/%s?%s", e.BaseURL, url.PathEscape(usTicker(symbol)), q.Encode())
	if err := request.GetJSON(ctx, e.client, endpoint, &payload); err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, len(payload))
	for _, item := range payload {
		amount := value(item.Value)
		if item.PaymentDate == "" || amount == "" {
			log.Debugf("Skipping EODHD dividend of %s with missing data", symbol)
			continue
		}
		date, err := parseDate(item.PaymentDate)
		if err != nil {
			log.WithError(err).Warnf("Skipping EODHD dividend of %s", symbol)
			continue
		}
		events = append(events, types.Event{
			EventDate:   date,
			Title:       translation.Translate("Dividends for %s", symbol),
			Description: translation.Translate("Amount: $%s", amount),
			Source:      eodhdLabel,
			Type:        types.EventDividends,
			Symbol:      symbol,
		})
	}
	return events, nil
}

func usTicker(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".US"
}
