package database

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"market-telegram-bot/internal/types"
)

// UpsertPortfolioItem adds an asset to a sub account, replacing an existing
// position with the same symbol.
func (s *Store) UpsertPortfolioItem(ctx context.Context, item types.PortfolioItem) error {
	if item.SubAccount == "" {
		item.SubAccount = types.MainSubAccount
	}
	if item.PurchaseDate.IsZero() {
		item.PurchaseDate = time.Now()
	}
	query := `
	INSERT OR REPLACE INTO portfolios (user_id, sub_account_name, asset_type, symbol, amount, purchase_price, purchase_date)
	VALUES (?, ?, ?, ?, ?, ?, ?);`

	_, err := s.DB.ExecContext(ctx, query,
		item.UserID, item.SubAccount, string(item.AssetType), strings.ToUpper(item.Symbol),
		item.Amount, item.PurchasePrice, item.PurchaseDate.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrapf(err, "failed to add %s to portfolio", item.Symbol)
	}

	log.WithFields(log.Fields{"user_id": item.UserID, "sub_account": item.SubAccount, "symbol": item.Symbol}).
		Info("Portfolio item saved")
	return nil
}

// GetPortfolio returns a user's positions grouped by sub account.
func (s *Store) GetPortfolio(ctx context.Context, userID int64) (map[string][]types.PortfolioItem, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT sub_account_name, asset_type, symbol, amount, purchase_price, purchase_date
	FROM portfolios WHERE user_id = ? ORDER BY sub_account_name, symbol;`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query portfolio of user %d", userID)
	}
	defer rows.Close()

	portfolio := make(map[string][]types.PortfolioItem)
	for rows.Next() {
		var (
			item                    types.PortfolioItem
			assetType, purchaseDate string
		)
		if err := rows.Scan(&item.SubAccount, &assetType, &item.Symbol, &item.Amount, &item.PurchasePrice, &purchaseDate); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		item.UserID = userID
		item.AssetType = types.AssetType(assetType)
		item.PurchaseDate = parseTime(purchaseDate)
		portfolio[item.SubAccount] = append(portfolio[item.SubAccount], item)
	}
	return portfolio, errors.Wrap(rows.Err(), "failed to iterate portfolio")
}

// RemovePortfolioItem deletes one position, reporting whether it existed.
func (s *Store) RemovePortfolioItem(ctx context.Context, userID int64, subAccount, symbol string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM portfolios WHERE user_id = ? AND sub_account_name = ? AND symbol = ?;`,
		userID, subAccount, strings.ToUpper(symbol))
	if err != nil {
		return false, errors.Wrapf(err, "failed to remove %s from portfolio", symbol)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return n > 0, nil
}

// SubAccounts lists the user's sub accounts with the main one always first.
func (s *Store) SubAccounts(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT sub_account_name FROM portfolios WHERE user_id = ?;`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query sub accounts of user %d", userID)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		if name != types.MainSubAccount {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate sub accounts")
	}
	sort.Strings(names)
	return append([]string{types.MainSubAccount}, names...), nil
}

// DeleteSubAccount removes a sub account together with all its positions.
func (s *Store) DeleteSubAccount(ctx context.Context, userID int64, subAccount string) error {
	if subAccount == types.MainSubAccount {
		return ErrMainSubAccount
	}
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM portfolios WHERE user_id = ? AND sub_account_name = ?;`, userID, subAccount)
	if err != nil {
		return errors.Wrapf(err, "failed to delete sub account %q", subAccount)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "sub account %q", subAccount)
	}
	return nil
}

// PortfolioSymbols returns every distinct symbol of assetType held by any
// user. An empty assetType matches all assets.
func (s *Store) PortfolioSymbols(ctx context.Context, assetType types.AssetType) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM portfolios WHERE ? = '' OR asset_type = ? ORDER BY symbol;`,
		string(assetType), string(assetType))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query portfolio symbols")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		symbols = append(symbols, symbol)
	}
	return symbols, errors.Wrap(rows.Err(), "failed to iterate symbols")
}

// UserPortfolioSymbols returns the distinct symbols held by one user.
func (s *Store) UserPortfolioSymbols(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM portfolios WHERE user_id = ? ORDER BY symbol;`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query portfolio symbols of user %d", userID)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		symbols = append(symbols, symbol)
	}
	return symbols, errors.Wrap(rows.Err(), "failed to iterate symbols")
}
