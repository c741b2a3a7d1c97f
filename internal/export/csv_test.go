package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/internal/validation"
)

func newCSV(t *testing.T) (*store.SQLiteStore, *CSV) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	_, err = s.CreateAsset(ctx, models.NewAsset{Symbol: "ALV", Name: "Allianz", Currency: "EUR"})
	require.NoError(t, err)
	_, err = s.CreateAsset(ctx, models.NewAsset{Symbol: "KO", Name: "Coca-Cola", Currency: "USD"})
	require.NoError(t, err)

	v := validation.NewInputValidator().WithClock(func() time.Time {
		return time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC)
	})
	return s, New(s, v, zerolog.Nop())
}

func TestImportReportsDuplicatesPerRow(t *testing.T) {
	ctx := context.Background()
	s, c := newCSV(t)

	input := strings.Join([]string{
		"symbol,date,gross,tax,currency,type,notes",
		"ALV,2024-05-10,11.40,3.01,,regular,AGM",
		"KO,2024-04-01,0.485,0.07,USD,,",
		"ALV,2024-05-10,11.40,3.01,,regular,again",
		"XXX,2024-05-10,1,,,,",
		"KO,2024-07-01,-1,,,,",
		"KO,2024-07-01,1,2,,,",
	}, "\n")

	result, err := c.ImportDividends(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Rejected, 4)
	assert.Equal(t, 1, result.Duplicates())

	assert.Equal(t, 4, result.Rejected[0].Line)
	assert.ErrorIs(t, result.Rejected[0], apperrors.ErrDuplicatePayment)
	assert.ErrorIs(t, result.Rejected[1], apperrors.ErrUnknownAsset)
	assert.ErrorIs(t, result.Rejected[2], apperrors.ErrInputValidation)
	assert.ErrorIs(t, result.Rejected[3], apperrors.ErrInputValidation)

	// The first row was not overwritten by the duplicate.
	alv, err := s.GetAssetBySymbol(ctx, "ALV")
	require.NoError(t, err)
	divs, err := s.GetDividends(ctx, store.DividendFilter{AssetID: alv.ID})
	require.NoError(t, err)
	require.Len(t, divs, 1)
	assert.Equal(t, "AGM", divs[0].Notes)
	assert.Equal(t, "EUR", divs[0].Currency)
}

func TestExportThenImportIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	s, c := newCSV(t)

	ko, err := s.GetAssetBySymbol(ctx, "KO")
	require.NoError(t, err)
	_, err = s.CreateDividend(ctx, models.NewDividend{
		AssetID:     ko.ID,
		PaymentDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("48.5"),
		TaxWithheld: decimal.RequireFromString("7.28"),
		Currency:    "USD",
		Type:        models.DividendSpecial,
		Notes:       "Q1, special",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := c.ExportDividends(ctx, &buf, store.DividendFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "symbol,name,date,gross,tax,net,currency,type,notes"))
	assert.Contains(t, out, "KO,Coca-Cola,2024-04-01,48.5,7.28,41.22,USD,special,\"Q1, special\"")

	// Importing the export into the same store only produces duplicates.
	result, err := c.ImportDividends(ctx, strings.NewReader(out))
	require.NoError(t, err)
	assert.Zero(t, result.Imported)
	assert.Equal(t, 1, result.Duplicates())

	// Into a fresh store it recreates the dividend.
	s2, c2 := newCSV(t)
	result, err = c2.ImportDividends(ctx, strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	divs, err := s2.GetDividends(ctx, store.DividendFilter{})
	require.NoError(t, err)
	require.Len(t, divs, 1)
	assert.True(t, divs[0].Amount.Equal(decimal.RequireFromString("48.5")))
	assert.Equal(t, models.DividendSpecial, divs[0].Type)
	assert.Equal(t, "Q1, special", divs[0].Notes)
}

func TestImportRejectsSQLFragmentsInSymbol(t *testing.T) {
	ctx := context.Background()
	s, c := newCSV(t)

	input := strings.Join([]string{
		"symbol,date,gross,tax,currency,type,notes",
		"KO;DROP TABLE dividends,2024-04-01,0.485,,,,",
		"KO union select 1,2024-04-02,0.485,,,,",
		"KO,2024-04-03,0.485,,,,",
	}, "\n")

	result, err := c.ImportDividends(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Rejected, 2)
	for _, rej := range result.Rejected {
		assert.ErrorIs(t, rej, apperrors.ErrInputValidation)
		assert.Contains(t, rej.Error(), "SQL fragments")
	}

	divs, err := s.GetDividends(ctx, store.DividendFilter{})
	require.NoError(t, err)
	assert.Len(t, divs, 1)
}
