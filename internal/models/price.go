package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceManual tags prices entered by hand.
const SourceManual = "manual_cli"

// Price is a daily closing price for an asset.
type Price struct {
	AssetID  int64
	Date     time.Time
	Close    decimal.Decimal
	Currency string
	Source   string
}

// Quote is the current price observation for one asset. PreviousClose is zero
// when no earlier price is known.
type Quote struct {
	AssetID       int64
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	Currency      string
	AsOf          time.Time
}
