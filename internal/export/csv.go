// Package export reads and writes dividends as CSV.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/internal/validation"
)

// DividendRow is one CSV line. Amounts are kept as text so that exported
// values round-trip exactly.
type DividendRow struct {
	Symbol   string `csv:"symbol"`
	Name     string `csv:"name"`
	Date     string `csv:"date"`
	Gross    string `csv:"gross"`
	Tax      string `csv:"tax"`
	Net      string `csv:"net"`
	Currency string `csv:"currency"`
	Type     string `csv:"type"`
	Notes    string `csv:"notes"`
}

// Store is the subset of the data store used for CSV transfer.
type Store interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	GetAssetBySymbol(ctx context.Context, symbol string) (*models.Asset, error)
	GetDividends(ctx context.Context, filter store.DividendFilter) ([]models.Dividend, error)
	CreateDividend(ctx context.Context, dividend models.NewDividend) (*models.Dividend, error)
}

// RowError reports why one imported line was rejected. Line counts the
// header as line 1.
type RowError struct {
	Line   int
	Symbol string
	Date   string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d (%s %s): %v", e.Line, e.Symbol, e.Date, e.Err)
}

// Unwrap returns the underlying error.
func (e RowError) Unwrap() error {
	return e.Err
}

// ImportResult summarises an import.
type ImportResult struct {
	Imported int
	Rejected []RowError
}

// Duplicates returns the number of rows rejected as duplicate payments.
func (r ImportResult) Duplicates() int {
	n := 0
	for _, e := range r.Rejected {
		if apperrors.Is(e.Err, apperrors.ErrDuplicatePayment) {
			n++
		}
	}
	return n
}

// CSV moves dividends between the store and CSV files.
type CSV struct {
	store     Store
	validator *validation.InputValidator
	log       zerolog.Logger
}

// New creates a new CSV transfer.
func New(s Store, validator *validation.InputValidator, log zerolog.Logger) *CSV {
	if validator == nil {
		validator = validation.NewInputValidator()
	}
	return &CSV{
		store:     s,
		validator: validator,
		log:       log.With().Str("component", "export").Logger(),
	}
}

// ExportDividends writes the dividends matching filter to w and returns the
// number of rows written.
func (c *CSV) ExportDividends(ctx context.Context, w io.Writer, filter store.DividendFilter) (int, error) {
	assets, err := c.store.ListAssets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load assets: %w", err)
	}
	byID := make(map[int64]models.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	dividends, err := c.store.GetDividends(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to load dividends: %w", err)
	}

	rows := make([]*DividendRow, 0, len(dividends))
	for _, d := range dividends {
		asset := byID[d.AssetID]
		rows = append(rows, &DividendRow{
			Symbol:   asset.Symbol,
			Name:     asset.Name,
			Date:     models.FormatDate(d.PaymentDate),
			Gross:    d.Amount.String(),
			Tax:      d.TaxWithheld.String(),
			Net:      d.Net().String(),
			Currency: d.Currency,
			Type:     string(d.Type),
			Notes:    d.Notes,
		})
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return 0, fmt.Errorf("failed to write csv: %w", err)
	}
	c.log.Info().Int("rows", len(rows)).Msg("Dividends exported")
	return len(rows), nil
}

// ImportDividends reads r and creates one dividend per row. Rows are
// independent: an invalid row, an unknown symbol or an existing payment for
// the same asset and date is reported and skipped, never merged.
func (c *CSV) ImportDividends(ctx context.Context, r io.Reader) (ImportResult, error) {
	var rows []*DividendRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return ImportResult{}, fmt.Errorf("failed to read csv: %w", err)
	}

	var result ImportResult
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		line := i + 2
		dividend, err := c.parseRow(ctx, row)
		if err == nil {
			_, err = c.store.CreateDividend(ctx, dividend)
		}
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Line: line, Symbol: row.Symbol, Date: row.Date, Err: err})
			c.log.Debug().Int("line", line).Err(err).Msg("Dividend row rejected")
			continue
		}
		result.Imported++
	}

	c.log.Info().
		Int("imported", result.Imported).
		Int("rejected", len(result.Rejected)).
		Msg("Dividends imported")
	return result, nil
}

func (c *CSV) parseRow(ctx context.Context, row *DividendRow) (models.NewDividend, error) {
	if validation.ContainsInjection(row.Symbol) {
		return models.NewDividend{}, apperrors.NewValidationError("symbol", row.Symbol, "contains SQL fragments")
	}
	symbol, err := c.validator.Symbol(row.Symbol)
	if err != nil {
		return models.NewDividend{}, err
	}
	asset, err := c.store.GetAssetBySymbol(ctx, symbol)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrAssetNotFound) {
			return models.NewDividend{}, fmt.Errorf("%s: %w", symbol, apperrors.ErrUnknownAsset)
		}
		return models.NewDividend{}, err
	}

	date, err := models.ParseDate(row.Date)
	if err != nil {
		return models.NewDividend{}, apperrors.NewValidationError("date", row.Date, "must be YYYY-MM-DD")
	}
	if err := c.validator.Date("date", date); err != nil {
		return models.NewDividend{}, err
	}

	gross, err := c.validator.Amount("gross", row.Gross)
	if err != nil {
		return models.NewDividend{}, err
	}
	tax, err := c.validator.OptionalAmount("tax", row.Tax)
	if err != nil {
		return models.NewDividend{}, err
	}
	if tax.GreaterThan(gross) {
		return models.NewDividend{}, apperrors.NewValidationError("tax", row.Tax, "exceeds gross amount")
	}

	currency := asset.Currency
	if strings.TrimSpace(row.Currency) != "" {
		if currency, err = c.validator.Currency(row.Currency); err != nil {
			return models.NewDividend{}, err
		}
	}

	dtype, err := models.ParseDividendType(row.Type)
	if err != nil {
		return models.NewDividend{}, err
	}
	notes, err := c.validator.Text("notes", row.Notes)
	if err != nil {
		return models.NewDividend{}, err
	}

	return models.NewDividend{
		AssetID:     asset.ID,
		PaymentDate: date,
		Amount:      gross,
		Currency:    currency,
		TaxWithheld: tax,
		Type:        dtype,
		Notes:       notes,
	}, nil
}
