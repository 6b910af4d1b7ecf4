package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/lib/helpers"
	"market-telegram-bot/lib/translation"
)

func isGroup(chat *tgbotapi.Chat) bool {
	return chat != nil && (chat.IsGroup() || chat.IsSuperGroup())
}

// isAdmin asks Telegram whether userID administers chatID.
func (b *Bot) isAdmin(chatID, userID int64) (bool, error) {
	member, err := b.Bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, errors.Wrapf(err, "could not get member %d of chat %d", userID, chatID)
	}
	return member.IsCreator() || member.IsAdministrator(), nil
}

// allowed reports whether userID may use the bot in chat. Private chats are
// always open; groups are open unless restricted to administrators.
func (b *Bot) allowed(ctx context.Context, chat *tgbotapi.Chat, userID int64) bool {
	if !isGroup(chat) {
		return true
	}
	settings, err := b.settings.GetChatSettings(ctx, chat.ID)
	if err != nil {
		log.WithError(err).WithField("chat_id", chat.ID).Error("Failed to load chat settings, checking admin rights")
	} else if settings.AllowAllUsers {
		return true
	}

	admin, err := b.isAdmin(chat.ID, userID)
	if err != nil {
		log.WithError(err).Error("Failed to check admin rights")
		return false
	}
	return admin
}

// settingsReply renders /settings of a group. Only administrators get the
// toggle keyboard.
func (b *Bot) settingsReply(ctx context.Context, chat *tgbotapi.Chat, userID int64) (string, *tgbotapi.InlineKeyboardMarkup) {
	if !isGroup(chat) {
		return esc("Settings are only available in group chats."), nil
	}
	settings, err := b.settings.GetChatSettings(ctx, chat.ID)
	if err != nil {
		log.WithError(err).WithField("chat_id", chat.ID).Error("Failed to load chat settings")
		return "❌ " + esc("Something went wrong, please try again later."), nil
	}
	admin, err := b.isAdmin(chat.ID, userID)
	if err != nil {
		log.WithError(err).Error("Failed to check admin rights")
	}

	text := settingsText(settings.AllowAllUsers)
	if !admin {
		return text + "\n\n_" + esc("Only administrators can change these settings.") + "_", nil
	}
	return text, settingsKeyboard(settings.AllowAllUsers)
}

// handleSettingsCallback applies a "settings|all" or "settings|admins" press
// and returns the callback answer.
func (b *Bot) handleSettingsCallback(ctx context.Context, q *tgbotapi.CallbackQuery, choice string) (string, error) {
	chat := q.Message.Chat
	if !isGroup(chat) || (choice != "all" && choice != "admins") {
		return translation.Translate("Invalid data."), nil
	}
	if q.From == nil {
		return translation.Translate("Only administrators can change these settings."), nil
	}
	admin, err := b.isAdmin(chat.ID, q.From.ID)
	if err != nil || !admin {
		return translation.Translate("Only administrators can change these settings."), err
	}

	allowAll := choice == "all"
	if err := b.settings.SetAllowAll(ctx, chat.ID, allowAll); err != nil {
		return translation.Translate("Something went wrong, please try again later."), err
	}
	log.WithFields(log.Fields{"chat_id": chat.ID, "user_id": q.From.ID, "allow_all": allowAll}).Info("Chat settings changed")

	edit := tgbotapi.NewEditMessageText(chat.ID, q.Message.MessageID, settingsText(allowAll))
	edit.ParseMode = tgbotapi.ModeMarkdownV2
	edit.ReplyMarkup = settingsKeyboard(allowAll)
	if _, err := b.Bot.Send(edit); err != nil {
		return "", err
	}
	return translation.Translate("Settings updated."), nil
}

func settingsText(allowAll bool) string {
	current := "Only administrators"
	if allowAll {
		current = "All users"
	}
	return "⚙️ *" + esc("Chat permissions") + "*\n\n" +
		esc("Current setting:") + " *" + esc(current) + "*\n\n" +
		esc("Who may send commands and press the bot buttons in this chat?")
}

func settingsKeyboard(allowAll bool) *tgbotapi.InlineKeyboardMarkup {
	all, admins := translation.Translate("All users"), translation.Translate("Only administrators")
	if allowAll {
		all = "✅ " + all
	} else {
		admins = "✅ " + admins
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(all, "settings|all")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(admins, "settings|admins")),
	)
	return &markup
}

// esc translates msgID and escapes it for MarkdownV2.
func esc(msgID string, vars ...interface{}) string {
	return helpers.EscapeMarkdownV2(translation.Translate(msgID, vars...))
}
