// Package validation checks and normalises user input before it reaches the store.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
)

var (
	// Tickers, ISINs and crypto pairs such as BTC-USD or BRK.B.
	symbolPattern = regexp.MustCompile(`^[A-Z0-9.&-]{1,20}$`)

	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(union\s+select|select\s+\*|drop\s+table|insert\s+into|delete\s+from)`),
		regexp.MustCompile(`(--|;|'|"|/\*|\*/)`),
	}

	minAmount = decimal.New(1, -8)
	maxAmount = decimal.New(1, 9)
)

// MaxTextLength bounds names and notes.
const MaxTextLength = 255

// InputValidator validates user input. The clock decides what "future" means
// for dates.
type InputValidator struct {
	now func() time.Time
}

// NewInputValidator creates a validator using the wall clock.
func NewInputValidator() *InputValidator {
	return &InputValidator{now: time.Now}
}

// WithClock returns a copy of v using now as its clock.
func (v *InputValidator) WithClock(now func() time.Time) *InputValidator {
	return &InputValidator{now: now}
}

// Symbol validates and normalises an asset symbol.
func (v *InputValidator) Symbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	if symbol == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol too long (max 20 characters)")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", apperrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return symbol, nil
}

// Currency validates an ISO 4217 currency code and returns it upper-cased.
func (v *InputValidator) Currency(code string) (string, error) {
	code = strings.TrimSpace(strings.ToUpper(code))

	if len(code) != 3 {
		return "", apperrors.NewValidationError("currency", code, "must be a 3-letter code (e.g. EUR, USD)")
	}
	for _, r := range code {
		if !unicode.IsLetter(r) {
			return "", apperrors.NewValidationError("currency", code, "must contain letters only")
		}
	}
	if money.GetCurrency(code) == nil {
		return "", apperrors.NewValidationError("currency", code, "unknown ISO 4217 currency")
	}
	return code, nil
}

// Amount parses a strictly positive amount. Decimal commas are accepted.
func (v *InputValidator) Amount(field, raw string) (decimal.Decimal, error) {
	d, err := parseDecimal(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := v.Positive(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// OptionalAmount parses a non-negative amount; empty input yields zero.
func (v *InputValidator) OptionalAmount(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := parseDecimal(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, apperrors.NewValidationError(field, raw, "must not be negative")
	}
	if d.GreaterThan(maxAmount) {
		return decimal.Zero, apperrors.NewValidationError(field, raw, fmt.Sprintf("exceeds maximum %s", maxAmount))
	}
	return d, nil
}

// Positive checks that d lies within the accepted positive range.
func (v *InputValidator) Positive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return apperrors.NewValidationError(field, d.String(), "must be greater than 0")
	}
	if d.LessThan(minAmount) {
		return apperrors.NewValidationError(field, d.String(), fmt.Sprintf("below minimum %s", minAmount))
	}
	if d.GreaterThan(maxAmount) {
		return apperrors.NewValidationError(field, d.String(), fmt.Sprintf("exceeds maximum %s", maxAmount))
	}
	return nil
}

// Threshold parses an alert threshold. Non-numeric or non-positive input is
// rejected with ErrInvalidThreshold.
func (v *InputValidator) Threshold(raw string) (decimal.Decimal, error) {
	clean := normalizeNumber(raw)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, apperrors.NewThresholdError(raw, "not a number")
	}
	if err := CheckThreshold(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckThreshold rejects non-positive thresholds.
func CheckThreshold(d decimal.Decimal) error {
	if !d.IsPositive() {
		return apperrors.NewThresholdError(d.String(), "must be greater than 0")
	}
	return nil
}

// Date checks that d is neither in the future nor before 1970.
func (v *InputValidator) Date(field string, d time.Time) error {
	if d.IsZero() {
		return apperrors.NewValidationError(field, "", "date is required")
	}
	today := v.now()
	if d.After(time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, d.Location())) {
		return apperrors.NewValidationError(field, d.Format("2006-01-02"), "date lies in the future")
	}
	if d.Year() < 1970 {
		return apperrors.NewValidationError(field, d.Format("2006-01-02"), "date is before 1970")
	}
	return nil
}

// Text validates free-form text such as names and notes.
func (v *InputValidator) Text(field, text string) (string, error) {
	text = SanitizeText(strings.TrimSpace(text))
	if runes := []rune(text); len(runes) > MaxTextLength {
		return "", apperrors.NewValidationError(field, string(runes[:50])+"...", fmt.Sprintf("text too long (max %d characters)", MaxTextLength))
	}
	return text, nil
}

// DateRange rejects a range whose end lies before its start. Zero bounds are open.
func (v *InputValidator) DateRange(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return apperrors.NewValidationError("to", to.Format("2006-01-02"), "end date lies before "+from.Format("2006-01-02"))
	}
	return nil
}

// ContainsInjection reports SQL-looking fragments. Dividend imports reject
// symbols that match before looking them up.
func ContainsInjection(input string) bool {
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// SanitizeText removes control characters.
func SanitizeText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func normalizeNumber(raw string) string {
	clean := strings.TrimSpace(raw)
	clean = strings.ReplaceAll(clean, " ", "")
	return strings.ReplaceAll(clean, ",", ".")
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	clean := normalizeNumber(raw)
	if clean == "" {
		return decimal.Zero, apperrors.NewValidationError(field, raw, "value is required")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(field, raw, "not a valid number")
	}
	return d, nil
}
