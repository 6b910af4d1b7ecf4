package commands

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font/gofont/goregular"

	"market-telegram-bot/internal/price"
	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/helpers"
	"market-telegram-bot/lib/translation"
)

const chartDays = 30

var (
	chartBackground = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	chartText       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	chartGrid       = drawing.Color{R: 100, G: 100, B: 100, A: 128}
	chartLine       = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	chartFill       = drawing.Color{R: 0, G: 122, B: 255, A: 25}
)

var (
	fontOnce  sync.Once
	chartFont *truetype.Font
	fontErr   error
)

func loadChartFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		chartFont, fontErr = truetype.Parse(goregular.TTF)
	})
	return chartFont, errors.Wrap(fontErr, "could not parse chart font")
}

// Chart handles /chart <stock|crypto> <SYMBOL>. It returns the PNG and its
// caption, or no image and a reply text when nothing can be drawn.
func (h *Handler) Chart(ctx context.Context, argument string) ([]byte, string) {
	log.Debugf("processing command /chart with argument :%s", argument)

	args := strings.Fields(argument)
	if len(args) == 1 {
		args = []string{string(types.Stock), args[0]}
	}
	assetType, symbol, ok := parseAsset(args)
	if !ok {
		return nil, usage("/chart stock|crypto SYMBOL")
	}

	key := string(assetType) + ":" + symbol
	if cached, found := h.cache.get(key); found {
		log.Debugf("returning cached chart for %s", key)
		return cached.Data, cached.Text
	}

	var source price.HistorySource
	switch assetType {
	case types.Stock:
		source = h.stockHistory
	case types.Crypto:
		source = h.cryptoHistory
	}
	if source == nil {
		return nil, "⚠️ " + tr("Charts are not available for %s.", symbol)
	}

	points, err := source.History(ctx, symbol, chartDays)
	if err != nil || len(points) < 2 {
		if err != nil {
			log.WithError(err).WithField("symbol", symbol).Warn("Chart history failed")
		}
		return nil, "⚠️ " + tr("No price history for %s, try later.", symbol)
	}

	title := translation.Translate("%s %d days price chart", symbol, chartDays)
	png, err := renderChart(title, points)
	if err != nil {
		return nil, failure(err, "Failed to render chart")
	}

	first, last := points[0].Price, points[len(points)-1].Price
	change := (last - first) / first * 100
	caption := fmt.Sprintf("%s\n%s *$%s* %s %s",
		assetLabel(assetType, symbol),
		tr("Last close:"), helpers.FormatPriceUS(last, true),
		helpers.ChangeEmoji(change), helpers.FormatPercent(change, true))

	h.cache.set(key, png, caption, 5*time.Minute)
	return png, caption
}

func renderChart(title string, points []types.PricePoint) ([]byte, error) {
	times := make([]time.Time, 0, len(points))
	prices := make([]float64, 0, len(points))
	for _, p := range points {
		times = append(times, p.Time)
		prices = append(prices, p.Price)
	}

	font, err := loadChartFont()
	if err != nil {
		return nil, err
	}

	minPrice, maxPrice := getMinMax(prices)
	padding := (maxPrice - minPrice) * 0.1
	if padding == 0 {
		padding = maxPrice * 0.01
	}

	graph := chart.Chart{
		Title:      title,
		Font:       font,
		TitleStyle: chart.Style{FontColor: chartText, FontSize: 14},
		Width:      1200,
		Height:     600,
		Background: chart.Style{
			FillColor: chartBackground,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: chartBackground},
		XAxis: chart.XAxis{
			Style: chart.Style{FontColor: chartText, StrokeColor: chartText},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return chart.TimeFromFloat64(f).Format("02-Jan")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			Style:          chart.Style{FontColor: chartText, StrokeColor: chartText},
			GridMajorStyle: chart.Style{StrokeColor: chartGrid, StrokeWidth: 1},
			Range:          &chart.ContinuousRange{Min: minPrice - padding, Max: maxPrice + padding},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return helpers.FormatPriceUS(f, false)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				XValues: times,
				YValues: prices,
				Style: chart.Style{
					StrokeColor: chartLine,
					StrokeWidth: 2,
					FillColor:   chartFill,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "could not render chart")
	}
	return buf.Bytes(), nil
}

func getMinMax(prices []float64) (lo, hi float64) {
	if len(prices) == 0 {
		return 0, 1
	}
	lo, hi = prices[0], prices[0]
	for _, p := range prices[1:] {
		lo = min(lo, p)
		hi = max(hi, p)
	}
	return lo, hi
}
