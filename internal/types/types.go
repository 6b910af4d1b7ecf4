package types

import (
	"strings"
	"time"
)

type AssetType string

const (
	Stock  AssetType = "stock"
	Crypto AssetType = "crypto"
)

// ParseAssetType accepts the lowercase names used in commands and storage.
func ParseAssetType(s string) (AssetType, bool) {
	switch AssetType(strings.ToLower(strings.TrimSpace(s))) {
	case Stock:
		return Stock, true
	case Crypto:
		return Crypto, true
	}
	return "", false
}

type Condition string

const (
	Above Condition = "above"
	Below Condition = "below"
)

func ParseCondition(s string) (Condition, bool) {
	switch Condition(strings.ToLower(strings.TrimSpace(s))) {
	case Above:
		return Above, true
	case Below:
		return Below, true
	}
	return "", false
}

type Alert struct {
	ID          int64     `json:"id"`
	ChatID      int64     `json:"chat_id"`
	AssetType   AssetType `json:"asset_type"`
	Symbol      string    `json:"symbol"`
	TargetPrice float64   `json:"target_price"`
	Condition   Condition `json:"condition"`
	CreatedAt   time.Time `json:"created_at"`
}

// Triggered reports whether price satisfies the alert. Both bounds are inclusive.
func (a Alert) Triggered(price float64) bool {
	switch a.Condition {
	case Above:
		return price >= a.TargetPrice
	case Below:
		return price <= a.TargetPrice
	}
	return false
}

const MainSubAccount = "Main"

type PortfolioItem struct {
	UserID        int64     `json:"user_id"`
	SubAccount    string    `json:"sub_account"`
	AssetType     AssetType `json:"asset_type"`
	Symbol        string    `json:"symbol"`
	Amount        float64   `json:"amount"`
	PurchasePrice float64   `json:"purchase_price"`
	PurchaseDate  time.Time `json:"purchase_date"`
}

type EventType string

const (
	EventMacro     EventType = "macro"
	EventDividends EventType = "dividends"
	EventEarnings  EventType = "earnings"
	EventPress     EventType = "press"
)

type Event struct {
	ID          int64     `json:"id"`
	EventDate   time.Time `json:"event_date"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Type        EventType `json:"type"`
	Symbol      string    `json:"symbol"` // empty for market-wide events
}

// PricePoint is one close of a daily history series.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// ChatSettings are the per group permissions. AllowAllUsers false limits
// the bot to chat administrators.
type ChatSettings struct {
	ChatID        int64 `json:"chat_id"`
	AllowAllUsers bool  `json:"allow_all_users"`
}
