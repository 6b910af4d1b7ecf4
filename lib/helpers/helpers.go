package helpers

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var markdownV2Escaper = strings.NewReplacer(
	`\`, `\\`, ".", `\.`, "-", `\-`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "~", `\~`, "`", "\\`", ">", `\>`, "<", `\<`, "#", `\#`,
	"+", `\+`, "=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, "!", `\!`,
)

// EscapeMarkdownV2 escapes every character Telegram reserves in MarkdownV2.
func EscapeMarkdownV2(text string) string {
	return markdownV2Escaper.Replace(text)
}

func priceDecimals(price float64) int {
	abs := math.Abs(price)
	switch {
	case abs >= 1, abs == 0:
		return 2
	case abs < 0.00001:
		return 8
	default:
		return 6
	}
}

// FormatPriceUS prints a price with US thousand separators. Sub-dollar prices
// keep more decimals.
func FormatPriceUS(price float64, escapeMarkdown bool) string {
	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.*f", priceDecimals(price), price)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

func FormatPriceRoundedUS(price float64) string {
	p := message.NewPrinter(language.English)
	return EscapeMarkdownV2(p.Sprintf("%d", int64(math.Round(price))))
}

// FormatPercent prints a signed percentage like "+1.25%".
func FormatPercent(pct float64, escapeMarkdown bool) string {
	formatted := fmt.Sprintf("%+.2f%%", pct)
	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// ChangeEmoji marks a move as up, down or flat.
func ChangeEmoji(pct float64) string {
	switch {
	case pct > 0:
		return "🟢"
	case pct < 0:
		return "🔴"
	default:
		return "⚪️"
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
