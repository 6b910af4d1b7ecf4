package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/database"
	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/helpers"
)

const (
	PortfolioPageSize = 4
	maxSubAccountName = 20
)

var hundred = decimal.NewFromInt(100)

// PortfolioView is one page of a sub account.
type PortfolioView struct {
	Text        string
	SubAccount  string
	Page        int
	Pages       int
	SubAccounts []string
}

type position struct {
	item      types.PortfolioItem
	price     float64
	available bool
	value     decimal.Decimal
	cost      decimal.Decimal
}

// Portfolio handles /portfolio [SUB] [PAGE].
func (h *Handler) Portfolio(ctx context.Context, userID int64, argument string) PortfolioView {
	sub, page := types.MainSubAccount, 1
	args := strings.Fields(argument)
	if n := len(args); n > 0 {
		if p, err := strconv.Atoi(args[n-1]); err == nil {
			page = p
			args = args[:n-1]
		}
	}
	if len(args) > 0 {
		sub = strings.Join(args, " ")
	}
	return h.PortfolioPage(ctx, userID, sub, page)
}

// PortfolioPage renders page (1 based) of a sub account.
func (h *Handler) PortfolioPage(ctx context.Context, userID int64, sub string, page int) PortfolioView {
	view := PortfolioView{SubAccount: sub, Page: 1, Pages: 1}

	portfolio, err := h.store.GetPortfolio(ctx, userID)
	if err != nil {
		view.Text = failure(err, "Failed to load portfolio")
		return view
	}
	if view.SubAccounts, err = h.store.SubAccounts(ctx, userID); err != nil {
		view.Text = failure(err, "Failed to load sub accounts")
		return view
	}

	items := portfolio[sub]
	if len(items) == 0 {
		view.Text = "💼 *" + esc(sub) + "*\n\n" + tr("No assets yet. Add one with /add_asset")
		return view
	}

	positions := h.valuate(ctx, items)

	view.Pages = (len(positions) + PortfolioPageSize - 1) / PortfolioPageSize
	view.Page = min(max(page, 1), view.Pages)
	start := (view.Page - 1) * PortfolioPageSize
	end := min(start+PortfolioPageSize, len(positions))

	var b strings.Builder
	fmt.Fprintf(&b, "💼 *%s* \\(%d/%d\\)\n", esc(sub), view.Page, view.Pages)
	for _, p := range positions[start:end] {
		b.WriteString("\n" + formatPosition(p))
	}
	b.WriteString("\n" + formatTotals(positions))
	view.Text = b.String()
	return view
}

func (h *Handler) valuate(ctx context.Context, items []types.PortfolioItem) []position {
	positions := make([]position, 0, len(items))
	for _, item := range items {
		amount := decimal.NewFromFloat(item.Amount)
		p := position{
			item: item,
			cost: amount.Mul(decimal.NewFromFloat(item.PurchasePrice)),
		}
		if current, ok := h.prices.GetPrice(ctx, item.Symbol, item.AssetType); ok {
			p.price, p.available = current, true
			p.value = amount.Mul(decimal.NewFromFloat(current))
		}
		positions = append(positions, p)
	}
	return positions
}

func percentChange(value, cost decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return value.Sub(cost).Div(cost).Mul(hundred)
}

func formatMoney(d decimal.Decimal) string {
	return helpers.FormatPriceUS(d.Round(2).InexactFloat64(), true)
}

func formatPosition(p position) string {
	line := fmt.Sprintf("%s × %s\n", assetLabel(p.item.AssetType, p.item.Symbol),
		esc(humanize.CommafWithDigits(p.item.Amount, 8)))
	line += fmt.Sprintf("   %s $%s\n", tr("Bought at"), helpers.FormatPriceUS(p.item.PurchasePrice, true))

	if !p.available {
		return line + "   " + tr("Current price unavailable") + "\n"
	}
	pct := percentChange(p.value, p.cost).InexactFloat64()
	line += fmt.Sprintf("   %s $%s\n", tr("Now"), helpers.FormatPriceUS(p.price, true))
	line += fmt.Sprintf("   %s $%s %s %s\n", tr("Value"), formatMoney(p.value),
		helpers.ChangeEmoji(pct), helpers.FormatPercent(pct, true))
	return line
}

func formatTotals(positions []position) string {
	var value, cost decimal.Decimal
	missing := 0
	for _, p := range positions {
		if !p.available {
			missing++
			continue
		}
		value = value.Add(p.value)
		cost = cost.Add(p.cost)
	}

	pnl := value.Sub(cost)
	pct := percentChange(value, cost).InexactFloat64()
	text := fmt.Sprintf("*%s:* $%s\n*%s:* $%s %s %s",
		tr("Total value"), formatMoney(value),
		tr("P&L"), formatMoney(pnl), helpers.ChangeEmoji(pct), helpers.FormatPercent(pct, true))
	if missing > 0 {
		text += "\n_" + tr("%d assets without a current price are not counted", missing) + "_"
	}
	return text
}

const addAssetUsage = "/add_asset stock|crypto SYMBOL AMOUNT PRICE [SUB]"

// AddAsset handles /add_asset <stock|crypto> <SYMBOL> <AMOUNT> <PRICE> [SUB].
func (h *Handler) AddAsset(ctx context.Context, userID int64, argument string) string {
	log.Debugf("processing command /add_asset with argument :%s", argument)

	args := strings.Fields(argument)
	if len(args) < 4 {
		return usage(addAssetUsage)
	}
	assetType, symbol, ok := parseAsset(args)
	if !ok {
		return usage(addAssetUsage)
	}
	amount, ok := parsePositive(args[2])
	if !ok {
		return "⚠️ " + tr("The amount must be a positive number.")
	}
	purchasePrice, ok := parsePositive(args[3])
	if !ok {
		return "⚠️ " + tr("The purchase price must be a positive number.")
	}
	sub := types.MainSubAccount
	if len(args) > 4 {
		sub = strings.Join(args[4:], " ")
	}
	if len(sub) > maxSubAccountName {
		return "⚠️ " + tr("Sub account names are limited to %d characters.", maxSubAccountName)
	}

	err := h.store.UpsertPortfolioItem(ctx, types.PortfolioItem{
		UserID:        userID,
		SubAccount:    sub,
		AssetType:     assetType,
		Symbol:        symbol,
		Amount:        amount,
		PurchasePrice: purchasePrice,
		PurchaseDate:  h.now(),
	})
	if err != nil {
		return failure(err, "Failed to add asset")
	}
	return fmt.Sprintf("✅ %s %s → *%s*", tr("Added"), assetLabel(assetType, symbol), esc(sub))
}

// RemoveAsset handles /remove_asset <SYMBOL> [SUB].
func (h *Handler) RemoveAsset(ctx context.Context, userID int64, argument string) string {
	args := strings.Fields(argument)
	if len(args) == 0 {
		return usage("/remove_asset SYMBOL [SUB]")
	}
	symbol := strings.ToUpper(args[0])
	sub := types.MainSubAccount
	if len(args) > 1 {
		sub = strings.Join(args[1:], " ")
	}

	removed, err := h.store.RemovePortfolioItem(ctx, userID, sub, symbol)
	if err != nil {
		return failure(err, "Failed to remove asset")
	}
	if !removed {
		return "⚠️ " + tr("%s is not in %s.", symbol, sub)
	}
	return "🗑 " + tr("%s removed from %s.", symbol, sub)
}

// RemoveSubAccount handles /remove_subaccount <SUB> and drops all its assets.
func (h *Handler) RemoveSubAccount(ctx context.Context, userID int64, argument string) string {
	sub := strings.TrimSpace(argument)
	if sub == "" {
		return usage("/remove_subaccount SUB")
	}

	err := h.store.DeleteSubAccount(ctx, userID, sub)
	switch {
	case err == nil:
		return "🗑 " + tr("Sub account %s deleted.", sub)
	case errors.Is(err, database.ErrMainSubAccount):
		return "⚠️ " + tr("The main sub account cannot be deleted.")
	case errors.Is(err, database.ErrNotFound):
		return "⚠️ " + tr("Sub account %s not found.", sub)
	default:
		return failure(err, "Failed to delete sub account")
	}
}
