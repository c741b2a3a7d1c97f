package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createAsset(t *testing.T, s *SQLiteStore, symbol string) *models.Asset {
	t.Helper()
	a, err := s.CreateAsset(context.Background(), models.NewAsset{
		Symbol:   symbol,
		Name:     symbol + " Corp",
		Quantity: decimal.NewFromInt(10),
		Currency: "EUR",
	})
	require.NoError(t, err)
	return a
}

func date(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreateAssetRejectsDuplicateSymbol(t *testing.T) {
	s := newTestStore(t)
	createAsset(t, s, "AAPL")

	_, err := s.CreateAsset(context.Background(), models.NewAsset{Symbol: "AAPL", Currency: "USD"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateSymbol)
}

func TestGetAssetBySymbol(t *testing.T) {
	s := newTestStore(t)
	created := createAsset(t, s, "VWRL")

	got, err := s.GetAssetBySymbol(context.Background(), "vwrl")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Active)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetAssetBySymbol(context.Background(), "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrAssetNotFound)
}

func TestDuplicateDividendScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	// Reach asset id 3.
	createAsset(t, s, "A1")
	createAsset(t, s, "A2")
	asset := createAsset(t, s, "A3")
	require.Equal(t, int64(3), asset.ID)

	first, err := s.CreateDividend(ctx, models.NewDividend{
		AssetID:     3,
		PaymentDate: date("2024-01-15"),
		Amount:      decimal.RequireFromString("12.50"),
		Currency:    "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DividendRegular, first.Type)

	_, err = s.CreateDividend(ctx, models.NewDividend{
		AssetID:     3,
		PaymentDate: date("2024-01-15"),
		Amount:      decimal.RequireFromString("9.00"),
		Currency:    "EUR",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDuplicatePayment)

	var ce *apperrors.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "dividend", ce.Table)

	_, err = s.CreateDividend(ctx, models.NewDividend{
		AssetID:     3,
		PaymentDate: date("2024-02-15"),
		Amount:      decimal.RequireFromString("9.00"),
		Currency:    "EUR",
	})
	require.NoError(t, err)

	dividends, err := s.GetDividends(ctx, DividendFilter{AssetID: 3})
	require.NoError(t, err)
	require.Len(t, dividends, 2)
	assert.True(t, dividends[0].Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "2024-01-15", models.FormatDate(dividends[0].PaymentDate))
}

func TestCreateDividendUnknownAsset(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateDividend(context.Background(), models.NewDividend{
		AssetID:     42,
		PaymentDate: date("2024-01-15"),
		Amount:      decimal.NewFromInt(1),
		Currency:    "EUR",
	})
	assert.ErrorIs(t, err, apperrors.ErrUnknownAsset)
}

func TestCreateDividendRejectsTaxAboveAmount(t *testing.T) {
	s := newTestStore(t)
	a := createAsset(t, s, "KO")

	_, err := s.CreateDividend(context.Background(), models.NewDividend{
		AssetID:     a.ID,
		PaymentDate: date("2024-01-15"),
		Amount:      decimal.NewFromInt(1),
		TaxWithheld: decimal.NewFromInt(2),
		Currency:    "EUR",
	})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestGetDividendsDateRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "MSFT")

	for _, d := range []string{"2023-12-01", "2024-03-01", "2024-06-01", "2024-09-01"} {
		_, err := s.CreateDividend(ctx, models.NewDividend{
			AssetID: a.ID, PaymentDate: date(d), Amount: decimal.NewFromInt(1), Currency: "USD",
		})
		require.NoError(t, err)
	}

	got, err := s.GetDividends(ctx, DividendFilter{From: date("2024-01-01"), To: date("2024-06-01")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-03-01", models.FormatDate(got[0].PaymentDate))
	assert.Equal(t, "2024-06-01", models.FormatDate(got[1].PaymentDate))

	got, err = s.GetDividends(ctx, DividendFilter{Currency: "eur"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateAndDeleteDividend(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "ALV")

	d1, err := s.CreateDividend(ctx, models.NewDividend{AssetID: a.ID, PaymentDate: date("2024-05-10"), Amount: decimal.NewFromInt(15), Currency: "EUR"})
	require.NoError(t, err)
	d2, err := s.CreateDividend(ctx, models.NewDividend{AssetID: a.ID, PaymentDate: date("2024-05-11"), Amount: decimal.NewFromInt(5), Currency: "EUR"})
	require.NoError(t, err)

	d2.PaymentDate = d1.PaymentDate
	assert.ErrorIs(t, s.UpdateDividend(ctx, d2), apperrors.ErrDuplicatePayment)

	d2.PaymentDate = date("2024-05-12")
	d2.TaxWithheld = decimal.RequireFromString("1.25")
	d2.Type = models.DividendSpecial
	require.NoError(t, s.UpdateDividend(ctx, d2))

	got, err := s.GetDividend(ctx, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DividendSpecial, got.Type)
	assert.True(t, got.TaxWithheld.Equal(decimal.RequireFromString("1.25")))

	require.NoError(t, s.DeleteDividend(ctx, d2.ID))
	assert.ErrorIs(t, s.DeleteDividend(ctx, d2.ID), apperrors.ErrDividendNotFound)
}

func TestDeleteAssetCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "SAP")
	other := createAsset(t, s, "BAS")

	_, err := s.CreateDividend(ctx, models.NewDividend{AssetID: a.ID, PaymentDate: date("2024-01-15"), Amount: decimal.NewFromInt(2), Currency: "EUR"})
	require.NoError(t, err)
	_, err = s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: a.ID, Type: models.AlertAbove, Threshold: decimal.NewFromInt(200), Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-15"), Close: decimal.NewFromInt(180), Currency: "EUR"}))
	require.NoError(t, s.SaveTransaction(ctx, &models.Transaction{AssetID: a.ID, Type: models.TransactionBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(150), Currency: "EUR", Date: date("2024-01-02")}))
	_, err = s.CreateDividend(ctx, models.NewDividend{AssetID: other.ID, PaymentDate: date("2024-01-15"), Amount: decimal.NewFromInt(3), Currency: "EUR"})
	require.NoError(t, err)

	deps, err := s.CountDependents(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, Dependents{Dividends: 1, Alerts: 1, Prices: 1, Transactions: 1}, deps)

	require.NoError(t, s.DeleteAsset(ctx, a.ID))

	dividends, err := s.GetDividends(ctx, DividendFilter{AssetID: a.ID})
	require.NoError(t, err)
	assert.Empty(t, dividends)

	alerts, err := s.GetAlerts(ctx, AlertFilter{AssetID: a.ID})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	txs, err := s.GetTransactions(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	remaining, err := s.GetDividends(ctx, DividendFilter{AssetID: other.ID})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	assert.ErrorIs(t, s.DeleteAsset(ctx, a.ID), apperrors.ErrAssetNotFound)

	violations, err := s.ForeignKeyViolations(ctx)
	require.NoError(t, err)
	assert.Zero(t, violations)
}

func TestCreatePriceAlertDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "BTC-EUR")

	alert, err := s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: a.ID, Type: models.AlertBelow, Threshold: decimal.NewFromInt(50), Currency: "EUR"})
	require.NoError(t, err)
	assert.True(t, alert.Active)
	assert.False(t, alert.Triggered)
	assert.Nil(t, alert.TriggeredAt)
	assert.False(t, alert.NotificationSent)

	_, err = s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: a.ID, Type: models.AlertBelow, Threshold: decimal.Zero, Currency: "EUR"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidThreshold)

	_, err = s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: 999, Type: models.AlertBelow, Threshold: decimal.NewFromInt(1), Currency: "EUR"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownAsset)
}

func TestAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "ETH-EUR")
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	alert, err := s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: a.ID, Type: models.AlertAbove, Threshold: decimal.NewFromInt(100), Currency: "EUR"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.MarkNotificationSent(ctx, alert.ID), apperrors.ErrNotTriggered)

	require.NoError(t, s.MarkTriggered(ctx, alert.ID, at))
	assert.ErrorIs(t, s.MarkTriggered(ctx, alert.ID, at.Add(time.Hour)), apperrors.ErrAlreadyTriggered)

	got, err := s.GetPriceAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TriggeredAt)
	assert.True(t, got.TriggeredAt.Equal(at))
	assert.False(t, got.NotificationSent)

	active, err := s.GetActiveAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, s.MarkNotificationSent(ctx, alert.ID))

	require.NoError(t, s.ResetAlert(ctx, alert.ID))
	got, err = s.GetPriceAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.False(t, got.Triggered)
	assert.Nil(t, got.TriggeredAt)
	assert.False(t, got.NotificationSent)

	require.NoError(t, s.DeactivateAlert(ctx, alert.ID))
	assert.ErrorIs(t, s.MarkTriggered(ctx, alert.ID, at), apperrors.ErrAlertInactive)

	require.NoError(t, s.DeleteAlert(ctx, alert.ID))
	assert.ErrorIs(t, s.DeleteAlert(ctx, alert.ID), apperrors.ErrAlertNotFound)
	assert.ErrorIs(t, s.MarkTriggered(ctx, alert.ID, at), apperrors.ErrAlertNotFound)
}

func TestGetAlertsFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "NVDA")

	var ids []int64
	for i := 0; i < 3; i++ {
		alert, err := s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: a.ID, Type: models.AlertAbove, Threshold: decimal.NewFromInt(int64(100 + i)), Currency: "USD"})
		require.NoError(t, err)
		ids = append(ids, alert.ID)
	}
	require.NoError(t, s.MarkTriggered(ctx, ids[0], time.Now()))
	require.NoError(t, s.DeactivateAlert(ctx, ids[1]))

	triggered, err := s.GetAlerts(ctx, AlertFilter{Triggered: Bool(true), NotificationSent: Bool(false)})
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, ids[0], triggered[0].ID)

	inactive, err := s.GetAlerts(ctx, AlertFilter{Active: Bool(false)})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, ids[1], inactive[0].ID)

	pending, err := s.GetActiveAlerts(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[2], pending[0].ID)
}

func TestLatestPrices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "IWDA")
	b := createAsset(t, s, "EUNL")

	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-01"), Close: decimal.NewFromInt(80), Currency: "EUR"}))
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-02"), Close: decimal.NewFromInt(82), Currency: "EUR"}))
	// Same day overwrites.
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-02"), Close: decimal.NewFromInt(88), Currency: "EUR"}))
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: b.ID, Date: date("2024-01-02"), Close: decimal.NewFromInt(70), Currency: "EUR"}))

	quotes, err := s.GetLatestPrices(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.True(t, quotes[a.ID].Price.Equal(decimal.NewFromInt(88)))
	assert.True(t, quotes[a.ID].PreviousClose.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "2024-01-02", models.FormatDate(quotes[a.ID].AsOf))
	assert.True(t, quotes[b.ID].PreviousClose.IsZero())

	prices, err := s.GetPrices(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, models.SourceManual, prices[0].Source)
}

func TestMaintenance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createAsset(t, s, "OR")

	problems, err := s.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	dest := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, s.Backup(ctx, dest))
	assert.ErrorIs(t, s.Backup(ctx, dest), apperrors.ErrBackup)

	copied, err := NewSQLiteStore(dest)
	require.NoError(t, err)
	defer copied.Close()
	assets, err := copied.ListAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestCurrencyStoredUppercase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateAsset(ctx, models.NewAsset{Symbol: "NESN", Currency: "chf"})
	require.NoError(t, err)
	assert.Equal(t, "CHF", a.Currency)

	d, err := s.CreateDividend(ctx, models.NewDividend{AssetID: a.ID, PaymentDate: date("2024-04-20"), Amount: decimal.NewFromInt(3), Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "USD", d.Currency)

	for _, code := range []string{"usd", "USD"} {
		divs, err := s.GetDividends(ctx, DividendFilter{Currency: code})
		require.NoError(t, err)
		require.Len(t, divs, 1, code)
		assert.Equal(t, d.ID, divs[0].ID)
	}

	alert, err := s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: a.ID, Type: models.AlertAbove, Threshold: decimal.NewFromInt(120), Currency: "chf"})
	require.NoError(t, err)
	assert.Equal(t, "CHF", alert.Currency)
}

func TestDeletePrice(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "MC")

	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-02"), Close: decimal.NewFromInt(700), Currency: "EUR"}))
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-03"), Close: decimal.NewFromInt(710), Currency: "EUR"}))

	require.NoError(t, s.DeletePrice(ctx, a.ID, date("2024-01-03")))
	err := s.DeletePrice(ctx, a.ID, date("2024-01-03"))
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
	var dataErr *apperrors.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "price", dataErr.DataType)
	assert.Equal(t, a.ID, dataErr.ID)

	prices, err := s.GetPrices(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "2024-01-02", models.FormatDate(prices[0].Date))
}

func TestGetPriceHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "OR")
	b := createAsset(t, s, "AI")

	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: b.ID, Date: date("2024-01-03"), Close: decimal.NewFromInt(170), Currency: "EUR"}))
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-03"), Close: decimal.NewFromInt(440), Currency: "EUR"}))
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-02"), Close: decimal.NewFromInt(430), Currency: "EUR"}))
	require.NoError(t, s.SavePrice(ctx, models.Price{AssetID: a.ID, Date: date("2024-01-04"), Close: decimal.NewFromInt(450), Currency: "EUR"}))

	all, err := s.GetPriceHistory(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2024-01-02", models.FormatDate(all[0].Date))
	assert.Equal(t, a.ID, all[1].AssetID)
	assert.Equal(t, b.ID, all[2].AssetID)

	upTo, err := s.GetPriceHistory(ctx, date("2024-01-03"))
	require.NoError(t, err)
	assert.Len(t, upTo, 3)
}

func TestTransactionLookupAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "SU")

	tx := &models.Transaction{AssetID: a.ID, Type: models.TransactionBuy, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(180), Currency: "eur", Date: date("2024-02-01")}
	require.NoError(t, s.SaveTransaction(ctx, tx))

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.Currency)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(2)))

	require.NoError(t, s.DeleteTransaction(ctx, tx.ID))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, tx.ID), apperrors.ErrDataNotFound)
	_, err = s.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestConcurrentAlertTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAsset(t, s, "ADS")

	var ids []int64
	for i := 0; i < 3; i++ {
		alert, err := s.CreatePriceAlert(ctx, models.NewPriceAlert{AssetID: a.ID, Type: models.AlertBelow, Threshold: decimal.NewFromInt(200), Currency: "EUR"})
		require.NoError(t, err)
		ids = append(ids, alert.ID)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		unexpected []error
	)
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				id := ids[(w+i)%len(ids)]
				var err error
				switch (w + i) % 4 {
				case 0:
					err = s.MarkTriggered(ctx, id, at)
				case 1:
					err = s.DeactivateAlert(ctx, id)
				case 2:
					err = s.ResetAlert(ctx, id)
				case 3:
					err = s.MarkNotificationSent(ctx, id)
				}
				if err != nil &&
					!apperrors.Is(err, apperrors.ErrAlreadyTriggered) &&
					!apperrors.Is(err, apperrors.ErrAlertInactive) &&
					!apperrors.Is(err, apperrors.ErrNotTriggered) {
					mu.Lock()
					unexpected = append(unexpected, fmt.Errorf("worker %d op %d on alert %d: %w", w, i, id, err))
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Empty(t, unexpected)

	alerts, err := s.GetAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, len(ids))
	for _, alert := range alerts {
		assert.NoError(t, alert.CheckInvariants(), "alert %d", alert.ID)
	}
}
