package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
)

// DividendType classifies a dividend payment.
type DividendType string

const (
	DividendRegular       DividendType = "regular"
	DividendSpecial       DividendType = "special"
	DividendCapitalReturn DividendType = "capital_return"
)

// DividendTypes lists every accepted dividend type.
var DividendTypes = []DividendType{DividendRegular, DividendSpecial, DividendCapitalReturn}

// Valid reports whether t is a known dividend type.
func (t DividendType) Valid() bool {
	for _, known := range DividendTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseDividendType parses s, defaulting to regular when empty.
func ParseDividendType(s string) (DividendType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DividendRegular, nil
	}
	t := DividendType(s)
	if !t.Valid() {
		return "", apperrors.NewValidationError("dividend_type", s, "must be one of regular, special, capital_return")
	}
	return t, nil
}

// Dividend is one recorded cash distribution for an asset on a specific date.
type Dividend struct {
	ID          int64
	AssetID     int64
	PaymentDate time.Time
	Amount      decimal.Decimal
	Currency    string
	TaxWithheld decimal.Decimal
	Type        DividendType
	Notes       string
	CreatedAt   time.Time
}

// Net returns the amount received after withholding tax.
func (d Dividend) Net() decimal.Decimal {
	return d.Amount.Sub(d.TaxWithheld)
}

// NewDividend holds the fields of a dividend to create.
type NewDividend struct {
	AssetID     int64
	PaymentDate time.Time
	Amount      decimal.Decimal
	Currency    string
	TaxWithheld decimal.Decimal
	Type        DividendType
	Notes       string
}
