package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"market-telegram-bot/internal/types"
)

// GetChatSettings returns the settings of a chat. Chats without a row
// allow every user.
func (s *Store) GetChatSettings(ctx context.Context, chatID int64) (types.ChatSettings, error) {
	settings := types.ChatSettings{ChatID: chatID, AllowAllUsers: true}
	err := s.DB.QueryRowContext(ctx,
		`SELECT allow_all_users FROM chat_settings WHERE chat_id = ?;`, chatID).Scan(&settings.AllowAllUsers)
	if err != nil && err != sql.ErrNoRows {
		return settings, errors.Wrapf(err, "failed to read settings of chat %d", chatID)
	}
	return settings, nil
}

func (s *Store) SetAllowAll(ctx context.Context, chatID int64, allowAll bool) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO chat_settings (chat_id, allow_all_users) VALUES (?, ?)
	ON CONFLICT(chat_id) DO UPDATE SET allow_all_users = excluded.allow_all_users;`, chatID, allowAll)
	return errors.Wrapf(err, "failed to update settings of chat %d", chatID)
}
