package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// SavePrice stores a closing price, replacing any earlier value for the same
// asset and day.
func (s *SQLiteStore) SavePrice(ctx context.Context, price models.Price) error {
	if price.Source == "" {
		price.Source = models.SourceManual
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price (asset_id, price_date, close, currency, source)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(asset_id, price_date) DO UPDATE SET
				close = excluded.close,
				currency = excluded.currency,
				source = excluded.source
		`, price.AssetID, models.FormatDate(price.Date), price.Close, strings.ToUpper(price.Currency), price.Source)
		if err != nil {
			return mapError("price", "save", err)
		}
		return nil
	})
}

// GetPrices returns the most recent prices of an asset, newest first.
func (s *SQLiteStore) GetPrices(ctx context.Context, assetID int64, limit int) ([]models.Price, error) {
	query := "SELECT asset_id, price_date, close, currency, source FROM price WHERE asset_id = ? ORDER BY price_date DESC"
	args := []interface{}{assetID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()
	return scanPrices(rows)
}

func scanPrices(rows *sql.Rows) ([]models.Price, error) {
	var prices []models.Price
	for rows.Next() {
		var p models.Price
		var date string
		if err := rows.Scan(&p.AssetID, &date, &p.Close, &p.Currency, &p.Source); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		var err error
		if p.Date, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("invalid price_date %q: %w", date, err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// DeletePrice removes the close stored for an asset on one day.
func (s *SQLiteStore) DeletePrice(ctx context.Context, assetID int64, day time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM price WHERE asset_id = ? AND price_date = ?",
			assetID, models.FormatDate(day))
		if err != nil {
			return mapError("price", "delete", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewDataError("price", assetID, "no close on "+models.FormatDate(day), apperrors.ErrDataNotFound)
		}
		return nil
	})
}

// GetPriceHistory returns every stored close up to and including the day
// `to`, ordered by date then asset. A zero `to` returns all prices.
func (s *SQLiteStore) GetPriceHistory(ctx context.Context, to time.Time) ([]models.Price, error) {
	query := "SELECT asset_id, price_date, close, currency, source FROM price"
	args := []interface{}{}
	if !to.IsZero() {
		query += " WHERE price_date <= ?"
		args = append(args, models.FormatDate(to))
	}
	query += " ORDER BY price_date, asset_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()
	return scanPrices(rows)
}

// GetLatestPrices returns, per asset, the latest close and the close before
// it. PreviousClose is zero for assets with a single stored price.
func (s *SQLiteStore) GetLatestPrices(ctx context.Context) (map[int64]models.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, price_date, close, currency, prev_close
		FROM (
			SELECT asset_id, price_date, close, currency,
				LAG(close) OVER (PARTITION BY asset_id ORDER BY price_date) AS prev_close,
				ROW_NUMBER() OVER (PARTITION BY asset_id ORDER BY price_date DESC) AS rn
			FROM price
		)
		WHERE rn = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest prices: %w", err)
	}
	defer rows.Close()

	quotes := make(map[int64]models.Quote)
	for rows.Next() {
		var q models.Quote
		var date string
		var prev decimal.NullDecimal
		if err := rows.Scan(&q.AssetID, &date, &q.Price, &q.Currency, &prev); err != nil {
			return nil, fmt.Errorf("failed to scan latest price: %w", err)
		}
		if q.AsOf, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("invalid price_date %q: %w", date, err)
		}
		if prev.Valid {
			q.PreviousClose = prev.Decimal
		}
		quotes[q.AssetID] = q
	}
	return quotes, rows.Err()
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// SaveTransaction inserts a buy or sell and sets its ID.
func (s *SQLiteStore) SaveTransaction(ctx context.Context, t *models.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO portfolio_transaction (asset_id, transaction_type, quantity, price, currency, transaction_date, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.AssetID, string(t.Type), t.Quantity, t.Price, strings.ToUpper(t.Currency), models.FormatDate(t.Date), t.Notes)
		if err != nil {
			return mapError("portfolio_transaction", "insert", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read transaction id: %w", err)
		}
		t.ID = id
		return nil
	})
}

// GetTransaction returns the transaction with the given id.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+transactionColumns+" FROM portfolio_transaction WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, apperrors.NewDataError("transaction", id, "not found", apperrors.ErrDataNotFound)
	}
	return &txs[0], nil
}

// DeleteTransaction removes a transaction. Callers that care about the
// remaining history staying consistent go through the portfolio service.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM portfolio_transaction WHERE id = ?", id)
		if err != nil {
			return mapError("portfolio_transaction", "delete", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperrors.NewDataError("transaction", id, "not found", apperrors.ErrDataNotFound)
		}
		return nil
	})
}

// GetTransactions returns transactions in chronological order. An assetID of
// zero returns the transactions of every asset.
func (s *SQLiteStore) GetTransactions(ctx context.Context, assetID int64) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM portfolio_transaction"
	args := []interface{}{}
	if assetID != 0 {
		query += " WHERE asset_id = ?"
		args = append(args, assetID)
	}
	query += " ORDER BY transaction_date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

const transactionColumns = "id, asset_id, transaction_type, quantity, price, currency, transaction_date, notes, created_at"

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var date string
		if err := rows.Scan(&t.ID, &t.AssetID, &t.Type, &t.Quantity, &t.Price, &t.Currency, &date, &t.Notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		var err error
		if t.Date, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("invalid transaction_date %q: %w", date, err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
