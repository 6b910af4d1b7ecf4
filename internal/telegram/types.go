package telegram

import (
	"context"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"market-telegram-bot/internal/commands"
	"market-telegram-bot/internal/metrics"
	"market-telegram-bot/internal/types"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
	// APIEndpoint overrides the Bot API URL format ("https://host/bot%s/%s").
	APIEndpoint string
	HTTPClient  *http.Client
}

// SettingsStore keeps the per group permissions; satisfied by *database.Store.
type SettingsStore interface {
	GetChatSettings(ctx context.Context, chatID int64) (types.ChatSettings, error)
	SetAllowAll(ctx context.Context, chatID int64, allowAll bool) error
}

// Bot telegram interaction client
type Bot struct {
	Bot      *tgbotapi.BotAPI
	Config   BotConfig
	handler  *commands.Handler
	settings SettingsStore
	metrics  *metrics.Metrics
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
	Markup    *tgbotapi.InlineKeyboardMarkup
}
