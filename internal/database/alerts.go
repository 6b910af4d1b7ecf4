package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
)

const alertColumns = `id, chat_id, asset_type, symbol, target_price, condition, created_at`

// InsertAlert saves an alert and returns the id assigned by the store.
func (s *Store) InsertAlert(ctx context.Context, a types.Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO alerts (chat_id, asset_type, symbol, target_price, condition, created_at)
	VALUES (?, ?, ?, ?, ?, ?);`

	res, err := s.DB.ExecContext(ctx, query,
		a.ChatID, string(a.AssetType), strings.ToUpper(a.Symbol), a.TargetPrice, string(a.Condition),
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert alert")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read alert id")
	}

	log.WithFields(log.Fields{
		"alert_id": id, "chat_id": a.ChatID, "symbol": a.Symbol, "condition": a.Condition, "target": a.TargetPrice,
	}).Info("Alert inserted")
	return id, nil
}

// ListAlerts fetches every alert across all chats in id order.
func (s *Store) ListAlerts(ctx context.Context) ([]types.Alert, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY id;`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	return scanAlerts(rows)
}

// ListAlertsByChat fetches all alerts owned by a chat.
func (s *Store) ListAlertsByChat(ctx context.Context, chatID int64) ([]types.Alert, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE chat_id = ? ORDER BY id;`, chatID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query alerts for chat ID %d", chatID)
	}
	return scanAlerts(rows)
}

// DeleteAlert removes an alert. Deleting an unknown id is not an error.
func (s *Store) DeleteAlert(ctx context.Context, alertID int64) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?;`, alertID); err != nil {
		return errors.Wrapf(err, "failed to delete alert %d", alertID)
	}
	return nil
}

// DeleteChatAlert removes an alert only if it belongs to chatID.
func (s *Store) DeleteChatAlert(ctx context.Context, chatID, alertID int64) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM alerts WHERE id = ? AND chat_id = ?;`, alertID, chatID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete alert %d", alertID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return n > 0, nil
}

func scanAlerts(rows *sql.Rows) ([]types.Alert, error) {
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var (
			a                    types.Alert
			assetType, condition string
			createdAt            string
		)
		if err := rows.Scan(&a.ID, &a.ChatID, &assetType, &a.Symbol, &a.TargetPrice, &condition, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		a.AssetType = types.AssetType(assetType)
		a.Condition = types.Condition(condition)
		a.CreatedAt = parseTime(createdAt)
		alerts = append(alerts, a)
	}
	return alerts, errors.Wrap(rows.Err(), "failed to iterate alerts")
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
