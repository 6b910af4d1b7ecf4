package calendar

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"market-telegram-bot/internal/types"
)

// Fetcher loads events that do not depend on a symbol.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]types.Event, error)
}

// SymbolFetcher loads events of one stock symbol.
type SymbolFetcher interface {
	Name() string
	FetchSymbol(ctx context.Context, symbol string) ([]types.Event, error)
}

type SourcesConfig struct {
	AlphaVantageKey string
	EODHDKey        string
	Timeout         time.Duration
}

// NewSources builds every source whose credentials are configured.
func NewSources(c SourcesConfig) ([]Fetcher, []SymbolFetcher) {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: c.Timeout}

	var general []Fetcher
	var perSymbol []SymbolFetcher
	if c.AlphaVantageKey != "" {
		general = append(general,
			NewAlphaVantageEarnings(c.AlphaVantageKey, client),
			NewAlphaVantageMacro(c.AlphaVantageKey, client),
		)
	}
	if c.EODHDKey != "" {
		general = append(general, NewEODHDEconomic(c.EODHDKey, client))
		perSymbol = append(perSymbol,
			NewEODHDEarnings(c.EODHDKey, client),
			NewEODHDDividends(c.EODHDKey, client),
		)
	}
	return general, perSymbol
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate accepts the date formats used by the calendar upstreams.
// Dates without a zone are UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised date %q", s)
}

// classify derives the event type from an economic event title.
func classify(title string) types.EventType {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "earnings"):
		return types.EventEarnings
	case strings.Contains(lower, "dividend"):
		return types.EventDividends
	case strings.Contains(lower, "meeting"), strings.Contains(lower, "conference"):
		return types.EventPress
	default:
		return types.EventMacro
	}
}
