package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// FormatDate formats a calendar date, or "-" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return models.FormatDate(t)
}

// FormatTimestamp formats an optional point in time in local time.
func FormatTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// FormatBool renders a flag as yes/no.
func FormatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FormatSize formats a byte count.
func FormatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// Truncate shortens s to max runes.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

// parseDateArg parses a YYYY-MM-DD flag value; empty means today.
func parseDateArg(field, raw string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return models.DateOf(now), nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(field, raw, "must be YYYY-MM-DD")
	}
	return d, nil
}

// parseOptionalDate parses a YYYY-MM-DD flag value; empty means unset.
func parseOptionalDate(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(field, raw, "must be YYYY-MM-DD")
	}
	return d, nil
}

// parseID parses a positive row id argument.
func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError(kind+" id", raw, "must be a positive integer")
	}
	return id, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
