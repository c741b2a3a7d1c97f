package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
)

// TransactionType is buy or sell.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// ParseTransactionType parses s into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransactionBuy, TransactionSell:
		return t, nil
	}
	return "", apperrors.NewValidationError("transaction_type", s, "must be buy or sell")
}

// Transaction is a single buy or sell of an asset.
type Transaction struct {
	ID        int64
	AssetID   int64
	Type      TransactionType
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Currency  string
	Date      time.Time
	Notes     string
	CreatedAt time.Time
}
