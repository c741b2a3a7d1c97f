package cli

import (
	"bytes"
	"encoding/json"
	"os"
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
)

var cliNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	t   *testing.T
	dir string
	app *App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	app := NewApp(zerolog.Nop())
	app.SetClock(func() time.Time { return cliNow })
	t.Cleanup(func() { app.Close() })
	return &harness{t: t, dir: t.TempDir(), app: app}
}

// run executes one command line with the given stdin.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	root := NewRootCmd(h.app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", h.dir}, args...))
	err := root.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	require.NoError(h.t, err, out)
	return out
}

func TestVersionSkipsConfig(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("version")
	assert.Contains(t, out, "Portfolio Tracker v"+Version)
	assert.NoFileExists(t, filepath.Join(h.dir, "config.toml"))
}

func TestAssetAddAndList(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "vwce", "--name", "Vanguard FTSE All-World", "--currency", "eur")

	out := h.mustRun("asset", "list")
	assert.Contains(t, out, "VWCE")
	assert.Contains(t, out, "Vanguard FTSE All-World")

	var assets []models.Asset
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--json", "asset", "list")), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, "EUR", assets[0].Currency)

	_, err := h.run("", "asset", "add", "VWCE")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateSymbol)

	_, err = h.run("", "asset", "add", "BAD SYMBOL!")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestDividendDuplicateRejected(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "ALV", "--currency", "EUR")
	h.mustRun("dividend", "add", "ALV", "--date", "2024-05-10", "--amount", "11.40", "--tax", "3.01")

	_, err := h.run("", "dividend", "add", "ALV", "--date", "2024-05-10", "--amount", "12")
	assert.ErrorIs(t, err, apperrors.ErrDuplicatePayment)

	_, err = h.run("", "dividend", "add", "ALV", "--date", "2024-07-01", "--amount", "12")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation, "future dates are rejected")

	h.mustRun("dividend", "add", "ALV", "--date", "2024-06-10", "--amount", "1,5")
	out := h.mustRun("dividend", "summary")
	assert.Contains(t, out, "ALV")
	assert.Contains(t, out, "Total EUR")

	h.mustRun("dividend", "edit", "1", "--notes", "AGM 2024")
	out = h.mustRun("dividend", "list", "--symbol", "ALV")
	assert.Contains(t, out, "AGM 2024")
}

func TestAlertLifecycle(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "ASML", "--currency", "EUR")

	_, err := h.run("", "alert", "add", "ASML", "--type", "above", "--threshold=-5")
	assert.ErrorIs(t, err, apperrors.ErrInvalidThreshold)

	h.mustRun("alert", "add", "ASML", "--type", "above", "--threshold", "100")

	h.mustRun("price", "set", "ASML", "95")
	out := h.mustRun("alert", "check")
	assert.Contains(t, out, "No alerts triggered")

	out = h.mustRun("alert", "check", "--price", "ASML=101")
	assert.Contains(t, out, "Alert 1: ASML rose to 101")

	var list []models.PriceAlert
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--json", "alert", "list")), &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].Triggered)
	require.NotNil(t, list[0].TriggeredAt)
	assert.True(t, list[0].TriggeredAt.Equal(cliNow))
	assert.False(t, list[0].NotificationSent)

	// A second check does not trigger again.
	out = h.mustRun("alert", "check", "--price", "ASML=105")
	assert.Contains(t, out, "No alerts triggered")

	h.mustRun("alert", "reset", "1")
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--json", "alert", "list", "--active")), &list))
	require.Len(t, list, 1)
	assert.False(t, list[0].Triggered)
	assert.Nil(t, list[0].TriggeredAt)

	h.mustRun("alert", "deactivate", "1")
	out = h.mustRun("alert", "check", "--price", "ASML=150")
	assert.Contains(t, out, "No alerts triggered")

	h.mustRun("alert", "delete", "1", "--yes")
	_, err = h.run("", "alert", "reset", "1")
	assert.ErrorIs(t, err, apperrors.ErrAlertNotFound)
}

func TestAssetDeleteConfirmsAndBacksUp(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "KO", "--currency", "USD")
	h.mustRun("dividend", "add", "KO", "--date", "2024-04-01", "--amount", "0.485")
	h.mustRun("alert", "add", "KO", "--type", "below", "--threshold", "50")

	out, err := h.run("n\n", "asset", "delete", "KO")
	require.NoError(t, err)
	assert.Contains(t, out, "1 dividend(s), 1 alert(s)")
	assert.Contains(t, out, "Cancelled")

	out, err = h.run("y\n", "asset", "delete", "KO")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted KO and 2 dependent row(s)")

	backups, err := filepath.Glob(filepath.Join(h.dir, "backups", "*.db"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, filepath.Base(backups[0]), "_before_delete_asset_ko.db")

	out = h.mustRun("dividend", "list")
	assert.Contains(t, out, "No dividends found")

	_, err = h.run("", "--json", "asset", "delete", "KO")
	assert.ErrorIs(t, err, apperrors.ErrAssetNotFound)
}

func TestPortfolioSummary(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "VWCE", "--currency", "EUR")
	h.mustRun("tx", "add", "buy", "VWCE", "10", "100", "--date", "2024-01-15")
	h.mustRun("price", "set", "VWCE", "120", "--date", "2024-06-14")

	_, err := h.run("", "tx", "add", "sell", "VWCE", "11", "120")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientQuantity)

	out := h.mustRun("portfolio", "summary")
	assert.Contains(t, out, "VWCE")
	assert.Contains(t, out, "+20.00%")
	assert.Contains(t, out, "Totals EUR")
}

type historyPoint struct {
	Date   time.Time
	Values map[string]decimal.Decimal
}

func (h *harness) history(args ...string) []historyPoint {
	h.t.Helper()
	var points []historyPoint
	out := h.mustRun(append([]string{"--json", "portfolio", "history"}, args...)...)
	require.NoError(h.t, json.Unmarshal([]byte(out), &points), out)
	return points
}

func TestPortfolioHistory(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "VWCE", "--currency", "EUR")
	h.mustRun("tx", "add", "buy", "VWCE", "10", "100", "--date", "2024-01-15")
	h.mustRun("tx", "add", "sell", "VWCE", "4", "120", "--date", "2024-06-14")
	h.mustRun("price", "set", "VWCE", "100", "--date", "2024-01-15")
	h.mustRun("price", "set", "VWCE", "120", "--date", "2024-06-14")

	points := h.history()
	require.Len(t, points, 2)
	assert.True(t, points[0].Values["EUR"].Equal(decimal.NewFromInt(1000)))
	assert.True(t, points[1].Values["EUR"].Equal(decimal.NewFromInt(720)))

	points = h.history("--from", "2024-02-01")
	require.Len(t, points, 1)
	assert.Equal(t, "2024-06-14", points[0].Date.Format("2006-01-02"))

	out := h.mustRun("portfolio", "history", "--to", "2024-03-01")
	assert.Contains(t, out, "DATE")
	assert.Contains(t, out, "EUR")
	assert.Contains(t, out, "2024-01-15")
	assert.NotContains(t, out, "2024-06-14")

	_, err := h.run("", "portfolio", "history", "--from", "2024-06-01", "--to", "2024-01-01")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestTransactionDelete(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "VWCE", "--currency", "EUR")
	h.mustRun("tx", "add", "buy", "VWCE", "10", "100", "--date", "2024-01-15")
	h.mustRun("tx", "add", "sell", "VWCE", "4", "120", "--date", "2024-06-14")

	_, err := h.run("", "tx", "delete", "1", "--yes")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientQuantity, "the sell would outlive its buy")

	out, err := h.run("n\n", "tx", "delete", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")

	out, err = h.run("y\n", "tx", "delete", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Transaction 2 deleted")

	_, err = h.run("", "tx", "delete", "2", "--yes")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)

	h.mustRun("tx", "delete", "1", "--yes")
	var txs []models.Transaction
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--json", "tx", "list")), &txs))
	assert.Empty(t, txs)
}

func TestPriceDelete(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "VWCE", "--currency", "EUR")
	h.mustRun("price", "set", "VWCE", "100", "--date", "2024-01-15")
	h.mustRun("price", "set", "VWCE", "120", "--date", "2024-06-14")

	_, err := h.run("", "price", "delete", "VWCE")
	assert.Error(t, err, "--date is required")

	out := h.mustRun("price", "delete", "VWCE", "--date", "2024-06-14")
	assert.Contains(t, out, "Removed VWCE close for 2024-06-14")

	_, err = h.run("", "price", "delete", "VWCE", "--date", "2024-06-14")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)

	var prices []models.Price
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("--json", "price", "list", "VWCE")), &prices))
	require.Len(t, prices, 1)
	assert.Equal(t, "2024-01-15", models.FormatDate(prices[0].Date))
}

func TestDividendExportImport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "ALV", "--currency", "EUR")
	h.mustRun("dividend", "add", "ALV", "--date", "2024-05-10", "--amount", "11.40", "--tax", "3.01")

	file := filepath.Join(h.dir, "dividends.csv")
	h.mustRun("dividend", "export", "-o", file)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ALV,,2024-05-10,11.4,3.01,8.39,EUR,regular,")

	out := h.mustRun("dividend", "import", file)
	assert.Contains(t, out, "Imported 0 dividend(s)")
	assert.Contains(t, out, "line 2")
}

func TestDBCheckAndBackups(t *testing.T) {
	h := newHarness(t)
	h.mustRun("asset", "add", "VWCE", "--currency", "EUR")

	out := h.mustRun("db", "check")
	assert.Contains(t, out, "Schema version: 1")
	assert.Contains(t, out, "Database is healthy")

	h.mustRun("backup", "create")
	out = h.mustRun("backup", "list")
	assert.Contains(t, out, "before manual")

	out = h.mustRun("backup", "cleanup")
	assert.Contains(t, out, "Removed 0 backup(s)")
}

func TestConfigPath(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("config", "path")
	assert.Equal(t, filepath.Join(h.dir, "config.toml"), strings.TrimSpace(out))

	out = h.mustRun("config", "show")
	assert.Contains(t, out, filepath.Join(h.dir, "portfolio.db"))
}
