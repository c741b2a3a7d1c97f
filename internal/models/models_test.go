package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
)

func TestParseAlertType(t *testing.T) {
	got, err := ParseAlertType(" Above ")
	require.NoError(t, err)
	assert.Equal(t, AlertAbove, got)

	_, err = ParseAlertType("sideways")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestParseDividendTypeDefaultsToRegular(t *testing.T) {
	got, err := ParseDividendType("")
	require.NoError(t, err)
	assert.Equal(t, DividendRegular, got)

	got, err = ParseDividendType("capital_return")
	require.NoError(t, err)
	assert.Equal(t, DividendCapitalReturn, got)

	_, err = ParseDividendType("bonus")
	assert.Error(t, err)
}

func TestDividendNet(t *testing.T) {
	d := Dividend{Amount: decimal.RequireFromString("12.50"), TaxWithheld: decimal.RequireFromString("1.875")}
	assert.True(t, d.Net().Equal(decimal.RequireFromString("10.625")))
}

func TestPriceAlertInvariants(t *testing.T) {
	now := time.Now()

	ok := PriceAlert{ID: 1, Active: true}
	assert.NoError(t, ok.CheckInvariants())
	assert.True(t, ok.Pending())

	fired := PriceAlert{ID: 2, Active: true, Triggered: true, TriggeredAt: &now, NotificationSent: true}
	assert.NoError(t, fired.CheckInvariants())
	assert.False(t, fired.Pending())

	missingTime := PriceAlert{ID: 3, Triggered: true}
	assert.Error(t, missingTime.CheckInvariants())

	strayTime := PriceAlert{ID: 4, TriggeredAt: &now}
	assert.Error(t, strayTime.CheckInvariants())

	earlyNotice := PriceAlert{ID: 5, NotificationSent: true}
	assert.Error(t, earlyNotice.CheckInvariants())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", FormatDate(d))
	assert.Equal(t, d, DateOf(time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC)))
}
