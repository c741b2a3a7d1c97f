// Package models defines the domain types persisted by the store.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk layout for calendar dates.
const DateLayout = "2006-01-02"

// Asset represents a tracked holding (stock, ETF or crypto position).
type Asset struct {
	ID        int64
	Symbol    string
	Name      string
	Quantity  decimal.Decimal
	Currency  string
	Active    bool
	CreatedAt time.Time
}

// DisplayName returns the symbol followed by the asset name.
func (a Asset) DisplayName() string {
	if a.Name == "" {
		return a.Symbol
	}
	return a.Symbol + "  " + a.Name
}

// NewAsset holds the user-supplied fields of an asset to create.
type NewAsset struct {
	Symbol   string
	Name     string
	Quantity decimal.Decimal
	Currency string
}

// DateOf truncates t to a calendar date in UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
