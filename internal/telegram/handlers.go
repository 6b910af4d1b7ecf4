package telegram

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/commands"
	"market-telegram-bot/internal/types"
	"market-telegram-bot/lib/translation"
)

// HandleUpdate processes one Telegram update. A panic in a command is logged
// with its stack trace and never reaches the updates loop.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 4096)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	if u.CallbackQuery != nil {
		b.HandleCallbackQuery(ctx, u.CallbackQuery)
		return
	}
	if u.Message == nil || !u.Message.IsCommand() {
		log.Debug("Received non-message or non-command")
		return
	}

	chat := u.Message.Chat
	chatName := chat.Title
	if chatName == "" {
		chatName = fmt.Sprintf("%s-%d", "PrivateChat", chat.ID)
	}
	b.metrics.MessageHandled(chat.ID, chatName)

	if !b.allowed(ctx, chat, userOf(u.Message)) {
		log.WithFields(log.Fields{"chat_id": chat.ID, "user_id": userOf(u.Message)}).Info("Command rejected by chat settings")
		if err := b.SendMessage(Message{
			ChatID:    chat.ID,
			MessageID: u.Message.MessageID,
			Text:      esc("You are not allowed to use bot commands in this chat."),
		}); err != nil {
			log.Errorf("Failed to send message: %v", err)
		}
		return
	}

	if err := b.handleCommand(ctx, u.Message); err != nil {
		log.Errorf("Failed to send message: %v", err)
		return
	}
	b.metrics.CommandProcessed()
}

// userOf is the portfolio owner: the sender, or the chat for channel posts.
func userOf(m *tgbotapi.Message) int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) error {
	h := b.handler
	chatID := m.Chat.ID
	args := m.CommandArguments()
	log.Debugf("received command: %s", m.Command())

	reply := Message{ChatID: chatID, MessageID: m.MessageID}

	switch m.Command() {
	case "start", "help":
		reply.Text = h.Help()
		reply.Markup = menuKeyboard()
	case "price":
		reply.Text = h.Price(ctx, args)
	case "chart":
		png, caption := h.Chart(ctx, args)
		if png != nil {
			return b.SendPhoto(chatID, m.MessageID, png, caption)
		}
		reply.Text = caption
	case "market":
		reply.Text = h.Market(ctx)
	case "set_alert":
		reply.Text = h.SetAlert(ctx, chatID, args)
	case "alerts":
		reply.Text = h.Alerts(ctx, chatID)
	case "remove_alert":
		reply.Text = h.RemoveAlert(ctx, chatID, args)
	case "portfolio":
		view := h.Portfolio(ctx, userOf(m), args)
		reply.Text = view.Text
		reply.Markup = portfolioKeyboard(view)
	case "add_asset":
		reply.Text = h.AddAsset(ctx, userOf(m), args)
	case "remove_asset":
		reply.Text = h.RemoveAsset(ctx, userOf(m), args)
	case "remove_subaccount":
		reply.Text = h.RemoveSubAccount(ctx, userOf(m), args)
	case "calendar":
		reply.Text = h.Calendar(ctx, userOf(m), args)
	case "settings":
		reply.Text, reply.Markup = b.settingsReply(ctx, m.Chat, userOf(m))
	case "cancel":
		reply.Text = h.Cancel()
	default:
		reply.Text = esc("Unknown command, see /help")
	}
	return b.SendMessage(reply)
}

// HandleCallbackQuery answers inline keyboard presses. Menu buttons send a
// new reply; portfolio navigation and settings edit the pressed message.
func (b *Bot) HandleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	answer := ""
	defer func() {
		if _, err := b.Bot.Request(tgbotapi.NewCallback(q.ID, answer)); err != nil {
			log.Errorf("Failed to answer callback query: %v", err)
		}
	}()

	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	userID := chatID
	if q.From != nil {
		userID = q.From.ID
	}

	if !b.allowed(ctx, q.Message.Chat, userID) {
		answer = translation.Translate("You are not allowed to use bot commands in this chat.")
		return
	}

	action, rest, _ := strings.Cut(q.Data, "|")
	var err error
	switch action {
	case "settings":
		if answer, err = b.handleSettingsCallback(ctx, q, rest); err != nil {
			log.Errorf("Failed to change chat settings: %v", err)
		}
		return
	case "menu":
		err = b.handleMenu(ctx, chatID, userID, rest)
	case "portfolio":
		sub, page, ok := parsePortfolioData(rest)
		if !ok {
			answer = translation.Translate("Invalid data.")
			return
		}
		view := b.handler.PortfolioPage(ctx, userID, sub, page)
		edit := tgbotapi.NewEditMessageText(chatID, q.Message.MessageID, view.Text)
		edit.ParseMode = tgbotapi.ModeMarkdownV2
		edit.ReplyMarkup = portfolioKeyboard(view)
		_, err = b.Bot.Send(edit)
	default:
		answer = translation.Translate("Unknown action. Please try again.")
		return
	}
	if err != nil {
		log.Errorf("Failed to handle callback %q: %v", q.Data, err)
		return
	}
	b.metrics.CommandProcessed()
}

func (b *Bot) handleMenu(ctx context.Context, chatID, userID int64, item string) error {
	h := b.handler
	reply := Message{ChatID: chatID}
	switch item {
	case "portfolio":
		view := h.PortfolioPage(ctx, userID, types.MainSubAccount, 1)
		reply.Text, reply.Markup = view.Text, portfolioKeyboard(view)
	case "alerts":
		reply.Text = h.Alerts(ctx, chatID)
	case "market":
		reply.Text = h.Market(ctx)
	case "calendar":
		reply.Text = h.Calendar(ctx, userID, "")
	default:
		reply.Text, reply.Markup = h.Help(), menuKeyboard()
	}
	return b.SendMessage(reply)
}

// portfolioData is the callback payload of a portfolio page button.
func portfolioData(sub string, page int) string {
	return fmt.Sprintf("portfolio|%s|%d", sub, page)
}

func parsePortfolioData(rest string) (string, int, bool) {
	i := strings.LastIndex(rest, "|")
	if i <= 0 {
		return "", 0, false
	}
	page, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, false
	}
	return rest[:i], page, true
}

func menuKeyboard() *tgbotapi.InlineKeyboardMarkup {
	tr := translation.Translate
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💼 "+tr("Portfolio"), "menu|portfolio"),
			tgbotapi.NewInlineKeyboardButtonData("🔔 "+tr("Alerts"), "menu|alerts"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌍 "+tr("Market"), "menu|market"),
			tgbotapi.NewInlineKeyboardButtonData("📅 "+tr("Calendar"), "menu|calendar"),
			tgbotapi.NewInlineKeyboardButtonData("❓ "+tr("Help"), "menu|help"),
		),
	)
	return &markup
}

// portfolioKeyboard offers page navigation and a switch to the other sub
// accounts. It is nil when there is nothing to navigate to.
func portfolioKeyboard(view commands.PortfolioView) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	var nav []tgbotapi.InlineKeyboardButton
	if view.Page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", portfolioData(view.SubAccount, view.Page-1)))
	}
	if view.Page < view.Pages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", portfolioData(view.SubAccount, view.Page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	var subs []tgbotapi.InlineKeyboardButton
	for _, sub := range view.SubAccounts {
		if sub == view.SubAccount {
			continue
		}
		subs = append(subs, tgbotapi.NewInlineKeyboardButtonData("📁 "+sub, portfolioData(sub, 1)))
		if len(subs) == 3 {
			rows = append(rows, subs)
			subs = nil
		}
	}
	if len(subs) > 0 {
		rows = append(rows, subs)
	}

	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
