package commands

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/database"
	"market-telegram-bot/internal/price"
	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/helpers"
	"market-telegram-bot/lib/translation"
)

// Prices resolves current prices; satisfied by *price.Resolver.
type Prices interface {
	GetPrice(ctx context.Context, symbol string, assetType types.AssetType) (float64, bool)
	GetPriceWithRetry(ctx context.Context, symbol string, assetType types.AssetType, retries int, delay time.Duration) (float64, bool)
}

// Quoter returns a price with its previous close; satisfied by *price.Yahoo.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (price.Quote, error)
}

// Store is the storage used by the commands; satisfied by *database.Store.
type Store interface {
	InsertAlert(ctx context.Context, a types.Alert) (int64, error)
	ListAlertsByChat(ctx context.Context, chatID int64) ([]types.Alert, error)
	DeleteChatAlert(ctx context.Context, chatID, alertID int64) (bool, error)

	UpsertPortfolioItem(ctx context.Context, item types.PortfolioItem) error
	GetPortfolio(ctx context.Context, userID int64) (map[string][]types.PortfolioItem, error)
	RemovePortfolioItem(ctx context.Context, userID int64, subAccount, symbol string) (bool, error)
	SubAccounts(ctx context.Context, userID int64) ([]string, error)
	DeleteSubAccount(ctx context.Context, userID int64, subAccount string) error
	UserPortfolioSymbols(ctx context.Context, userID int64) ([]string, error)

	ListEvents(ctx context.Context, f database.EventFilter) ([]types.Event, error)
}

type Config struct {
	Prices        Prices
	Store         Store
	Quotes        Quoter
	StockHistory  price.HistorySource
	CryptoHistory price.HistorySource
	// Retries and RetryDelay bound interactive quotes.
	Retries    int
	RetryDelay time.Duration
}

// Handler implements the bot commands. Every method returns the reply
// formatted as MarkdownV2; failures are logged and turned into a reply.
type Handler struct {
	prices        Prices
	store         Store
	quotes        Quoter
	stockHistory  price.HistorySource
	cryptoHistory price.HistorySource
	retries       int
	retryDelay    time.Duration

	cache *responseCache
	now   func() time.Time
}

func NewHandler(c Config) *Handler {
	h := &Handler{
		prices:        c.Prices,
		store:         c.Store,
		quotes:        c.Quotes,
		stockHistory:  c.StockHistory,
		cryptoHistory: c.CryptoHistory,
		retries:       c.Retries,
		retryDelay:    c.RetryDelay,
		cache:         newResponseCache(),
		now:           time.Now,
	}
	if h.retries < 1 {
		h.retries = 2
	}
	if h.retryDelay < 0 {
		h.retryDelay = time.Second
	}
	return h
}

func esc(text string) string { return helpers.EscapeMarkdownV2(text) }

// tr translates msgID and escapes the result for MarkdownV2.
func tr(msgID string, vars ...interface{}) string {
	return esc(translation.Translate(msgID, vars...))
}

func usage(line string) string {
	return tr("Usage:") + " `" + strings.ReplaceAll(line, "`", "") + "`"
}

func failure(err error, msg string) string {
	log.WithError(err).Error(msg)
	return "❌ " + tr("Something went wrong, please try again later.")
}

// Help is the reply of /start and /help.
func (h *Handler) Help() string {
	lines := []string{
		"*" + tr("Market bot") + "*",
		"",
		tr("Track stock and crypto prices, keep a portfolio, set price alerts and follow the economic calendar."),
		"",
		"/price `stock|crypto SYMBOL` " + tr("current price"),
		"/chart `stock|crypto SYMBOL` " + tr("30 day chart"),
		"/market " + tr("market overview"),
		"/set\\_alert `stock|crypto SYMBOL PRICE above|below` " + tr("new alert"),
		"/alerts " + tr("your alerts"),
		"/remove\\_alert `ID` " + tr("delete an alert"),
		"/portfolio `[SUB] [PAGE]` " + tr("your portfolio"),
		"/add\\_asset `stock|crypto SYMBOL AMOUNT PRICE [SUB]` " + tr("add a position"),
		"/remove\\_asset `SYMBOL [SUB]` " + tr("remove a position"),
		"/remove\\_subaccount `SUB` " + tr("delete a sub account"),
		"/calendar `[macro|dividends|earnings|press|portfolio]` " + tr("upcoming events"),
		"/settings " + tr("who may use the bot in a group"),
		"/cancel " + tr("cancel the current action"),
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) Cancel() string {
	return tr("Action cancelled.")
}

// parseAsset reads "<stock|crypto> <SYMBOL>" from the head of args.
func parseAsset(args []string) (types.AssetType, string, bool) {
	if len(args) < 2 {
		return "", "", false
	}
	assetType, ok := types.ParseAssetType(args[0])
	if !ok {
		return "", "", false
	}
	symbol := strings.ToUpper(strings.TrimSpace(args[1]))
	if symbol == "" || len(symbol) > 20 {
		return "", "", false
	}
	return assetType, symbol, true
}

// parsePositive accepts "150", "150.5" and "150,5".
func parsePositive(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "."), 64)
	if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func assetLabel(assetType types.AssetType, symbol string) string {
	return "*" + esc(symbol) + "* " + esc("("+translation.Translate(string(assetType))+")")
}
