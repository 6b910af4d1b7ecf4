package telegram

import (
	"context"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/commands"
	"market-telegram-bot/internal/metrics"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig, handler *commands.Handler, settings SettingsStore, m *metrics.Metrics) (*Bot, error) {
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if c.APIEndpoint != "" {
		client := c.HTTPClient
		if client == nil {
			client = &http.Client{}
		}
		bot, err = tgbotapi.NewBotAPIWithClient(c.Token, c.APIEndpoint, client)
	} else {
		bot, err = tgbotapi.NewBotAPI(c.Token)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug
	log.Infof("Authorized on account %s", bot.Self.UserName)

	return &Bot{
		Bot:      bot,
		Config:   c,
		handler:  handler,
		settings: settings,
		metrics:  m,
	}, nil
}

// GetUpdatesChannel gets new updates updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// StopReceivingUpdates ends long polling and closes the updates channel.
func (b *Bot) StopReceivingUpdates() {
	b.Bot.StopReceivingUpdates()
}

// SendMessage sends a MarkdownV2 telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if m.Markup != nil {
		msg.ReplyMarkup = *m.Markup
	}
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// SendPhoto sends a PNG with a MarkdownV2 caption.
func (b *Bot) SendPhoto(chatID int64, replyTo int, png []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: png,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	photo.ReplyToMessageID = replyTo
	_, err := b.Bot.Send(photo)
	return errors.Wrapf(err, "could not send chart to chat %d", chatID)
}

// Notify sends a plain text message. An error means the message was not
// accepted by Telegram.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "notification cancelled")
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.Bot.Send(msg); err != nil {
		return errors.Wrapf(err, "could not notify chat %d", chatID)
	}
	return nil
}
