// Package alerts evaluates price alerts against a snapshot of current prices.
package alerts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Snapshot maps asset IDs to their current quote.
type Snapshot map[int64]models.Quote

// SnapshotOf builds a snapshot from bare prices, without previous closes.
func SnapshotOf(prices map[int64]decimal.Decimal) Snapshot {
	snap := make(Snapshot, len(prices))
	for id, p := range prices {
		snap[id] = models.Quote{AssetID: id, Price: p}
	}
	return snap
}

// Holds reports whether quote satisfies the alert's condition, ignoring the
// alert's active and triggered flags.
func Holds(alert models.PriceAlert, quote models.Quote) bool {
	switch alert.Type {
	case models.AlertAbove:
		return quote.Price.GreaterThanOrEqual(alert.Threshold)

	case models.AlertBelow:
		return quote.Price.LessThanOrEqual(alert.Threshold)

	case models.AlertChangePercent:
		if !quote.PreviousClose.IsPositive() {
			return false
		}
		return ChangePercent(quote).Abs().GreaterThanOrEqual(alert.Threshold)

	default:
		return false
	}
}

// ChangePercent returns the move from the previous close in percent, or zero
// when no previous close is known.
func ChangePercent(quote models.Quote) decimal.Decimal {
	if !quote.PreviousClose.IsPositive() {
		return decimal.Zero
	}
	return quote.Price.Div(quote.PreviousClose).Sub(decimal.NewFromInt(1)).Mul(hundred)
}

// Evaluate applies quote to alert and returns the resulting alert state.
//
// An inactive alert is returned unchanged whatever the price. An already
// triggered alert is returned unchanged with ErrAlreadyTriggered, which
// callers treat as a no-op. When the condition holds the alert comes back
// triggered at now with notification_sent left false.
func Evaluate(alert models.PriceAlert, quote models.Quote, now time.Time) (models.PriceAlert, bool, error) {
	if !alert.Active {
		return alert, false, nil
	}
	if alert.Triggered {
		return alert, false, fmt.Errorf("alert %d: %w", alert.ID, apperrors.ErrAlreadyTriggered)
	}
	if !Holds(alert, quote) {
		return alert, false, nil
	}

	at := now
	alert.Triggered = true
	alert.TriggeredAt = &at
	return alert, true, nil
}

// Describe renders a one-line explanation of why alert fired.
func Describe(alert models.PriceAlert, symbol string, quote models.Quote) string {
	switch alert.Type {
	case models.AlertAbove:
		return fmt.Sprintf("%s rose to %s %s (at or above %s)", symbol, quote.Price.String(), alert.Currency, alert.Threshold.String())
	case models.AlertBelow:
		return fmt.Sprintf("%s fell to %s %s (at or below %s)", symbol, quote.Price.String(), alert.Currency, alert.Threshold.String())
	case models.AlertChangePercent:
		return fmt.Sprintf("%s moved %s%% to %s %s (threshold %s%%)", symbol, ChangePercent(quote).StringFixed(2), quote.Price.String(), alert.Currency, alert.Threshold.String())
	default:
		return fmt.Sprintf("%s alert %d triggered", symbol, alert.ID)
	}
}
