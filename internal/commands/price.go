package commands

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/helpers"
)

// Price handles /price <stock|crypto> <SYMBOL>. A lone symbol is a stock.
func (h *Handler) Price(ctx context.Context, argument string) string {
	log.Debugf("processing command /price with argument :%s", argument)

	args := strings.Fields(argument)
	if len(args) == 1 {
		args = []string{string(types.Stock), args[0]}
	}
	assetType, symbol, ok := parseAsset(args)
	if !ok {
		return usage("/price stock|crypto SYMBOL")
	}

	current, ok := h.prices.GetPriceWithRetry(ctx, symbol, assetType, h.retries, h.retryDelay)
	if !ok {
		return "⚠️ " + tr("Price of %s is unavailable, try later.", symbol)
	}
	return "💵 " + assetLabel(assetType, symbol) + ": *$" + helpers.FormatPriceUS(current, true) + "*"
}
