// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used by the store.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *SQLiteStore) {
		s.logger = logger.With().Str("component", "store").Logger()
	}
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Immediate transactions take the write lock up front so read-then-write
	// sequences wait on busy_timeout instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:     db,
		path:   dbPath,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := migrate(context.Background(), db, store.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// mapError converts SQLite constraint failures into typed domain errors.
func mapError(table, op string, err error) error {
	var sqliteErr sqlite3.Error
	if !apperrors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return fmt.Errorf("failed to %s %s: %w", op, table, err)
	}

	var kind error
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		switch table {
		case "dividend":
			kind = apperrors.ErrDuplicatePayment
		case "asset":
			kind = apperrors.ErrDuplicateSymbol
		default:
			kind = apperrors.ErrDatabaseError
		}
	case sqlite3.ErrConstraintForeignKey:
		kind = apperrors.ErrUnknownAsset
	case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
		kind = apperrors.ErrInputValidation
	default:
		kind = apperrors.ErrDatabaseError
	}
	return apperrors.NewConstraintError(table, op, kind, err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ---------------------------------------------------------------------------
// Assets
// ---------------------------------------------------------------------------

const assetColumns = "id, symbol, name, quantity, currency, active, created_at"

func scanAsset(row rowScanner) (*models.Asset, error) {
	var a models.Asset
	if err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.Quantity, &a.Currency, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAsset inserts a new asset.
func (s *SQLiteStore) CreateAsset(ctx context.Context, asset models.NewAsset) (*models.Asset, error) {
	var created *models.Asset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO asset (symbol, name, quantity, currency)
			VALUES (?, ?, ?, ?)
		`, asset.Symbol, asset.Name, asset.Quantity, strings.ToUpper(asset.Currency))
		if err != nil {
			return mapError("asset", "insert", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read asset id: %w", err)
		}
		created, err = scanAsset(tx.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM asset WHERE id = ?", id))
		if err != nil {
			return fmt.Errorf("failed to reload asset: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int64("asset_id", created.ID).Str("symbol", created.Symbol).Msg("Asset created")
	return created, nil
}

// GetAsset returns the asset with the given id.
func (s *SQLiteStore) GetAsset(ctx context.Context, id int64) (*models.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM asset WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %d: %w", id, apperrors.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// GetAssetBySymbol returns the asset with the given symbol.
func (s *SQLiteStore) GetAssetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	a, err := scanAsset(s.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM asset WHERE symbol = ?", symbol))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %s: %w", symbol, apperrors.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// ListAssets returns all assets ordered by symbol.
func (s *SQLiteStore) ListAssets(ctx context.Context) ([]models.Asset, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+assetColumns+" FROM asset ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// CountDependents counts the rows a DeleteAsset call would remove alongside
// the asset.
func (s *SQLiteStore) CountDependents(ctx context.Context, assetID int64) (Dependents, error) {
	var d Dependents
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM dividend WHERE asset_id = ?1),
			(SELECT COUNT(*) FROM price_alert WHERE asset_id = ?1),
			(SELECT COUNT(*) FROM price WHERE asset_id = ?1),
			(SELECT COUNT(*) FROM portfolio_transaction WHERE asset_id = ?1)
	`, assetID).Scan(&d.Dividends, &d.Alerts, &d.Prices, &d.Transactions)
	if err != nil {
		return Dependents{}, fmt.Errorf("failed to count dependents: %w", err)
	}
	return d, nil
}

// DeleteAsset removes the asset and, by cascade, every dividend, alert, price
// and transaction it owns. Confirmation is the caller's responsibility.
func (s *SQLiteStore) DeleteAsset(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM asset WHERE id = ?", id)
		if err != nil {
			return mapError("asset", "delete", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("asset %d: %w", id, apperrors.ErrAssetNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("asset_id", id).Msg("Asset deleted")
	return nil
}

// ---------------------------------------------------------------------------
// Dividends
// ---------------------------------------------------------------------------

const dividendColumns = "id, asset_id, payment_date, amount, currency, tax_withheld, dividend_type, notes, created_at"

func scanDividend(row rowScanner) (*models.Dividend, error) {
	var d models.Dividend
	var paymentDate string
	if err := row.Scan(&d.ID, &d.AssetID, &paymentDate, &d.Amount, &d.Currency, &d.TaxWithheld, &d.Type, &d.Notes, &d.CreatedAt); err != nil {
		return nil, err
	}
	date, err := models.ParseDate(paymentDate)
	if err != nil {
		return nil, fmt.Errorf("invalid payment_date %q: %w", paymentDate, err)
	}
	d.PaymentDate = date
	return &d, nil
}

// CreateDividend inserts a dividend. The (asset, payment_date) uniqueness
// check and the insert happen in one statement inside one transaction; a
// second payment for the same day fails with ErrDuplicatePayment.
func (s *SQLiteStore) CreateDividend(ctx context.Context, dividend models.NewDividend) (*models.Dividend, error) {
	if dividend.Type == "" {
		dividend.Type = models.DividendRegular
	}

	var created *models.Dividend
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO dividend (asset_id, payment_date, amount, currency, tax_withheld, dividend_type, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, dividend.AssetID, models.FormatDate(dividend.PaymentDate), dividend.Amount, strings.ToUpper(dividend.Currency),
			dividend.TaxWithheld, string(dividend.Type), dividend.Notes)
		if err != nil {
			return mapError("dividend", "insert", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read dividend id: %w", err)
		}
		created, err = scanDividend(tx.QueryRowContext(ctx, "SELECT "+dividendColumns+" FROM dividend WHERE id = ?", id))
		if err != nil {
			return fmt.Errorf("failed to reload dividend: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Int64("dividend_id", created.ID).
		Int64("asset_id", created.AssetID).
		Str("payment_date", models.FormatDate(created.PaymentDate)).
		Msg("Dividend created")
	return created, nil
}

// GetDividend returns the dividend with the given id.
func (s *SQLiteStore) GetDividend(ctx context.Context, id int64) (*models.Dividend, error) {
	d, err := scanDividend(s.db.QueryRowContext(ctx, "SELECT "+dividendColumns+" FROM dividend WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dividend %d: %w", id, apperrors.ErrDividendNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dividend: %w", err)
	}
	return d, nil
}

// UpdateDividend overwrites the editable fields of an existing dividend.
func (s *SQLiteStore) UpdateDividend(ctx context.Context, dividend *models.Dividend) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE dividend
			SET payment_date = ?, amount = ?, currency = ?, tax_withheld = ?, dividend_type = ?, notes = ?
			WHERE id = ?
		`, models.FormatDate(dividend.PaymentDate), dividend.Amount, strings.ToUpper(dividend.Currency),
			dividend.TaxWithheld, string(dividend.Type), dividend.Notes, dividend.ID)
		if err != nil {
			return mapError("dividend", "update", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("dividend %d: %w", dividend.ID, apperrors.ErrDividendNotFound)
		}
		return nil
	})
}

// DeleteDividend removes a single dividend.
func (s *SQLiteStore) DeleteDividend(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM dividend WHERE id = ?", id)
		if err != nil {
			return mapError("dividend", "delete", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("dividend %d: %w", id, apperrors.ErrDividendNotFound)
		}
		return nil
	})
}

// GetDividends returns dividends matching filter ordered by payment date.
func (s *SQLiteStore) GetDividends(ctx context.Context, filter DividendFilter) ([]models.Dividend, error) {
	query := "SELECT " + dividendColumns + " FROM dividend WHERE 1=1"
	args := []interface{}{}

	if filter.AssetID != 0 {
		query += " AND asset_id = ?"
		args = append(args, filter.AssetID)
	}
	if !filter.From.IsZero() {
		query += " AND payment_date >= ?"
		args = append(args, models.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		query += " AND payment_date <= ?"
		args = append(args, models.FormatDate(filter.To))
	}
	if filter.Currency != "" {
		query += " AND currency = ?"
		args = append(args, strings.ToUpper(filter.Currency))
	}
	if filter.Type != "" {
		query += " AND dividend_type = ?"
		args = append(args, string(filter.Type))
	}

	query += " ORDER BY payment_date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var dividends []models.Dividend
	for rows.Next() {
		d, err := scanDividend(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		dividends = append(dividends, *d)
	}
	return dividends, rows.Err()
}
