package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/helpers"
	"market-telegram-bot/lib/translation"
)

const setAlertUsage = "/set_alert stock|crypto SYMBOL PRICE above|below"

// SetAlert handles /set_alert <stock|crypto> <SYMBOL> <PRICE> <above|below>.
func (h *Handler) SetAlert(ctx context.Context, chatID int64, argument string) string {
	log.Debugf("processing command /set_alert with argument :%s", argument)

	args := strings.Fields(argument)
	if len(args) != 4 {
		return usage(setAlertUsage)
	}
	assetType, symbol, ok := parseAsset(args)
	if !ok {
		return usage(setAlertUsage)
	}
	target, ok := parsePositive(args[2])
	if !ok {
		return "⚠️ " + tr("The target price must be a positive number.")
	}
	condition, ok := types.ParseCondition(args[3])
	if !ok {
		return usage(setAlertUsage)
	}

	id, err := h.store.InsertAlert(ctx, types.Alert{
		ChatID:      chatID,
		AssetType:   assetType,
		Symbol:      symbol,
		TargetPrice: target,
		Condition:   condition,
		CreatedAt:   h.now(),
	})
	if err != nil {
		return failure(err, "Failed to save alert")
	}

	reply := fmt.Sprintf("✅ %s \\#%d: %s %s *$%s*",
		tr("Alert set"), id, assetLabel(assetType, symbol),
		tr(string(condition)), helpers.FormatPriceUS(target, true))

	// a cached quote is shown as context only, no upstream call is forced
	if current, ok := h.prices.GetPrice(ctx, symbol, assetType); ok {
		reply += "\n" + tr("Current price:") + " $" + helpers.FormatPriceUS(current, true)
		if (types.Alert{TargetPrice: target, Condition: condition}).Triggered(current) {
			reply += "\n" + tr("The condition is already met, you will be notified on the next check.")
		}
	}
	return reply
}

// Alerts handles /alerts and lists the alerts of the chat.
func (h *Handler) Alerts(ctx context.Context, chatID int64) string {
	alerts, err := h.store.ListAlertsByChat(ctx, chatID)
	if err != nil {
		return failure(err, "Failed to fetch alerts")
	}
	if len(alerts) == 0 {
		return tr("You have no active alerts.")
	}

	var b strings.Builder
	b.WriteString("🔔 *" + tr("Your alerts") + "*\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n\\#%d %s %s *$%s* _%s_",
			a.ID,
			assetLabel(a.AssetType, a.Symbol),
			tr(string(a.Condition)),
			helpers.FormatPriceUS(a.TargetPrice, true),
			esc(humanize.RelTime(a.CreatedAt, h.now(), translation.Translate("ago"), translation.Translate("from now"))),
		)
	}
	b.WriteString("\n\n" + tr("Remove one with /remove_alert ID"))
	return b.String()
}

// RemoveAlert handles /remove_alert <ID>. Only alerts of the chat can be removed.
func (h *Handler) RemoveAlert(ctx context.Context, chatID int64, argument string) string {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(argument), "#"), 10, 64)
	if err != nil || id <= 0 {
		return usage("/remove_alert ID")
	}

	removed, err := h.store.DeleteChatAlert(ctx, chatID, id)
	if err != nil {
		return failure(err, "Failed to remove alert")
	}
	if !removed {
		return "⚠️ " + tr("Alert #%d not found.", id)
	}
	return "🗑 " + tr("Alert #%d removed.", id)
}
