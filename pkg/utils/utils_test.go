package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatMoney(decimal.RequireFromString("1234.5"), "USD"))
	assert.Equal(t, "-$12.00", FormatMoney(decimal.NewFromInt(-12), "USD"))
	assert.Equal(t, "12.30 XXZ", FormatMoney(decimal.RequireFromString("12.3"), "XXZ"))
}

func TestFormatPercentAndPnL(t *testing.T) {
	assert.Equal(t, "+20.00%", FormatPercent(decimal.NewFromInt(20)))
	assert.Equal(t, "-3.50%", FormatPercent(decimal.RequireFromString("-3.5")))
	assert.Equal(t, "0.00%", FormatPercent(decimal.Zero))

	assert.Equal(t, "+$5.00", FormatPnL(decimal.NewFromInt(5), "USD"))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "0.12345679", FormatQuantity(decimal.RequireFromString("0.123456789")))
	assert.Equal(t, "10", FormatQuantity(decimal.RequireFromString("10.000")))
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	bad := errors.New("bad request")
	err = Retry(context.Background(), cfg, func() error {
		calls++
		return Permanent(bad)
	})
	assert.Same(t, bad, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}
	err := Retry(ctx, cfg, func() error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 2))
}
