package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
)

// AlertType selects the comparison an alert performs.
type AlertType string

const (
	// AlertAbove holds when the price is at or above the threshold.
	AlertAbove AlertType = "above"
	// AlertBelow holds when the price is at or below the threshold.
	AlertBelow AlertType = "below"
	// AlertChangePercent holds when the move against the previous close, in
	// percent, reaches the threshold in either direction.
	AlertChangePercent AlertType = "change_percent"
)

// AlertTypes lists every accepted alert type.
var AlertTypes = []AlertType{AlertAbove, AlertBelow, AlertChangePercent}

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	for _, known := range AlertTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseAlertType parses s into an AlertType.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", apperrors.NewValidationError("alert_type", s, "must be one of above, below, change_percent")
	}
	return t, nil
}

// PriceAlert is a standing watch condition on an asset's price.
type PriceAlert struct {
	ID               int64
	AssetID          int64
	Type             AlertType
	Threshold        decimal.Decimal
	Currency         string
	Active           bool
	Triggered        bool
	TriggeredAt      *time.Time
	NotificationSent bool
	Notes            string
	CreatedAt        time.Time
}

// Pending reports whether the alert is still subject to evaluation.
func (a PriceAlert) Pending() bool {
	return a.Active && !a.Triggered
}

// CheckInvariants verifies the triggered/triggered_at/notification_sent relations.
func (a PriceAlert) CheckInvariants() error {
	if a.Triggered != (a.TriggeredAt != nil) {
		return fmt.Errorf("alert %d: triggered=%t but triggered_at set=%t", a.ID, a.Triggered, a.TriggeredAt != nil)
	}
	if a.NotificationSent && !a.Triggered {
		return fmt.Errorf("alert %d: notification sent before trigger", a.ID)
	}
	return nil
}

// NewPriceAlert holds the fields of an alert to create.
type NewPriceAlert struct {
	AssetID   int64
	Type      AlertType
	Threshold decimal.Decimal
	Currency  string
	Notes     string
}

// TriggeredAlert pairs an alert that fired with the observation that fired it.
type TriggeredAlert struct {
	Alert   PriceAlert
	Symbol  string
	Name    string
	Quote   Quote
	Message string
}
