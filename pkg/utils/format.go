// Package utils provides shared utility functions.
package utils

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney formats amount in the conventions of currency (symbol, grouping
// and minor units), e.g. "€1.234,50" or "$1,234.50". Unknown currencies fall
// back to the plain amount followed by the code.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	sign := ""
	if value.IsPositive() {
		sign = "+"
	}
	return sign + value.StringFixed(2) + "%"
}

// FormatPnL formats a profit/loss amount with an explicit sign for gains.
func FormatPnL(pnl decimal.Decimal, currency string) string {
	formatted := FormatMoney(pnl, currency)
	if pnl.IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a quantity without trailing zeros, keeping up to
// eight decimal places for crypto holdings.
func FormatQuantity(qty decimal.Decimal) string {
	return qty.Round(8).String()
}
