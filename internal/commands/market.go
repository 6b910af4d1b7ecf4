package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/price"
	"market-telegram-bot/lib/helpers"
)

const marketCacheKey = "market"

type marketAsset struct {
	name   string
	symbol string
}

type marketGroup struct {
	title  string
	assets []marketAsset
}

var marketGroups = []marketGroup{
	{title: "Indices", assets: []marketAsset{
		{"S&P 500", "^GSPC"},
		{"Dow Jones", "^DJI"},
		{"NASDAQ", "^IXIC"},
		{"FTSE 100", "^FTSE"},
		{"DAX", "^GDAXI"},
		{"CAC 40", "^FCHI"},
		{"Nikkei 225", "^N225"},
		{"Hang Seng", "^HSI"},
		{"SSE Composite", "000001.SS"},
	}},
	{title: "Commodities", assets: []marketAsset{
		{"Gold", "GC=F"},
		{"Brent", "BZ=F"},
		{"Natural gas", "NG=F"},
	}},
	{title: "Crypto", assets: []marketAsset{
		{"Bitcoin", "BTC-USD"},
	}},
}

// Market handles /market: indices, commodities and bitcoin with their daily
// change. The reply is cached for five minutes.
func (h *Handler) Market(ctx context.Context) string {
	if cached, found := h.cache.get(marketCacheKey); found {
		log.Debug("returning cached market overview")
		return cached.Text
	}
	if h.quotes == nil {
		return "⚠️ " + tr("Market data is unavailable, try later.")
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		quotes = make(map[string]price.Quote)
	)
	for _, group := range marketGroups {
		for _, asset := range group.assets {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				q, err := h.quotes.Quote(ctx, symbol)
				if err != nil {
					log.WithError(err).WithField("symbol", symbol).Warn("Market quote failed")
					return
				}
				mu.Lock()
				quotes[symbol] = q
				mu.Unlock()
			}(asset.symbol)
		}
	}
	wg.Wait()

	if len(quotes) == 0 {
		return "⚠️ " + tr("Market data is unavailable, try later.")
	}

	var b strings.Builder
	b.WriteString("🌍 *" + tr("Market overview") + "*\n")
	for _, group := range marketGroups {
		b.WriteString("\n*" + tr(group.title) + "*\n")
		for _, asset := range group.assets {
			q, ok := quotes[asset.symbol]
			if !ok {
				fmt.Fprintf(&b, "▫️ %s: %s\n", esc(asset.name), tr("n/a"))
				continue
			}
			change := q.ChangePercent()
			fmt.Fprintf(&b, "%s %s: `%s` %s\n",
				helpers.ChangeEmoji(change), esc(asset.name),
				helpers.FormatPriceUS(q.Price, false), helpers.FormatPercent(change, true))
		}
	}
	b.WriteString("\n_" + tr("Updated %s UTC", h.now().UTC().Format("15:04")) + "_")

	text := b.String()
	h.cache.set(marketCacheKey, nil, text, 5*time.Minute)
	return text
}
