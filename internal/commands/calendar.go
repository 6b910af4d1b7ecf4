package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market-telegram-bot/internal/database"
	"market-telegram-bot/internal/types"
)

const calendarLimit = 10

var eventEmoji = map[types.EventType]string{
	types.EventMacro:     "📊",
	types.EventDividends: "💰",
	types.EventEarnings:  "📈",
	types.EventPress:     "🎤",
}

// Calendar handles /calendar [macro|dividends|earnings|press|portfolio].
func (h *Handler) Calendar(ctx context.Context, userID int64, argument string) string {
	filter := database.EventFilter{From: h.now().UTC().Truncate(24 * time.Hour), Limit: calendarLimit}
	heading := tr("Upcoming events")

	switch arg := strings.ToLower(strings.TrimSpace(argument)); arg {
	case "":
	case "portfolio":
		symbols, err := h.store.UserPortfolioSymbols(ctx, userID)
		if err != nil {
			return failure(err, "Failed to load portfolio symbols")
		}
		filter.Symbols = append([]string{}, symbols...)
		heading = tr("Events for your portfolio")
	case string(types.EventMacro), string(types.EventDividends), string(types.EventEarnings), string(types.EventPress):
		filter.Type = types.EventType(arg)
		heading = tr("Upcoming events") + " " + eventEmoji[filter.Type] + " " + tr(arg)
	default:
		return usage("/calendar [macro|dividends|earnings|press|portfolio]")
	}

	events, err := h.store.ListEvents(ctx, filter)
	if err != nil {
		return failure(err, "Failed to load events")
	}
	if len(events) == 0 {
		return "📅 " + tr("No upcoming events.")
	}

	var b strings.Builder
	b.WriteString("📅 *" + heading + "*\n")
	for _, e := range events {
		fmt.Fprintf(&b, "\n%s *%s* %s\n", eventEmoji[e.Type], esc(e.EventDate.Format("2006-01-02 15:04")), esc(e.Title))
		if e.Description != "" {
			b.WriteString("   " + esc(e.Description) + "\n")
		}
		if e.Source != "" {
			b.WriteString("   _" + esc(e.Source) + "_\n")
		}
	}
	return b.String()
}
