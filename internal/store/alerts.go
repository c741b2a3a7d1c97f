package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/validation"
)

const alertColumns = "id, asset_id, alert_type, threshold_value, currency, active, triggered, triggered_at, notification_sent, notes, created_at"

func scanAlert(row rowScanner) (*models.PriceAlert, error) {
	var a models.PriceAlert
	var triggeredAt sql.NullTime
	if err := row.Scan(&a.ID, &a.AssetID, &a.Type, &a.Threshold, &a.Currency, &a.Active, &a.Triggered,
		&triggeredAt, &a.NotificationSent, &a.Notes, &a.CreatedAt); err != nil {
		return nil, err
	}
	if triggeredAt.Valid {
		t := triggeredAt.Time
		a.TriggeredAt = &t
	}
	return &a, nil
}

// CreatePriceAlert inserts an active, untriggered alert.
func (s *SQLiteStore) CreatePriceAlert(ctx context.Context, alert models.NewPriceAlert) (*models.PriceAlert, error) {
	if err := validation.CheckThreshold(alert.Threshold); err != nil {
		return nil, err
	}
	if !alert.Type.Valid() {
		return nil, apperrors.NewValidationError("alert_type", string(alert.Type), "unknown alert type")
	}

	var created *models.PriceAlert
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO price_alert (asset_id, alert_type, threshold_value, currency, notes)
			VALUES (?, ?, ?, ?, ?)
		`, alert.AssetID, string(alert.Type), alert.Threshold, strings.ToUpper(alert.Currency), alert.Notes)
		if err != nil {
			return mapError("price_alert", "insert", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read alert id: %w", err)
		}
		created, err = scanAlert(tx.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM price_alert WHERE id = ?", id))
		if err != nil {
			return fmt.Errorf("failed to reload alert: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int64("alert_id", created.ID).Int64("asset_id", created.AssetID).Msg("Price alert created")
	return created, nil
}

// GetPriceAlert returns the alert with the given id.
func (s *SQLiteStore) GetPriceAlert(ctx context.Context, id int64) (*models.PriceAlert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM price_alert WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %d: %w", id, apperrors.ErrAlertNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// GetAlerts returns alerts matching filter ordered by id.
func (s *SQLiteStore) GetAlerts(ctx context.Context, filter AlertFilter) ([]models.PriceAlert, error) {
	query := "SELECT " + alertColumns + " FROM price_alert WHERE 1=1"
	args := []interface{}{}

	if filter.AssetID != 0 {
		query += " AND asset_id = ?"
		args = append(args, filter.AssetID)
	}
	if filter.Active != nil {
		query += " AND active = ?"
		args = append(args, *filter.Active)
	}
	if filter.Triggered != nil {
		query += " AND triggered = ?"
		args = append(args, *filter.Triggered)
	}
	if filter.NotificationSent != nil {
		query += " AND notification_sent = ?"
		args = append(args, *filter.NotificationSent)
	}

	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryAlerts(ctx, query, args...)
}

// GetActiveAlerts returns every alert still subject to evaluation (active and
// not yet triggered), optionally restricted to one asset. The result always
// reflects the current table contents.
func (s *SQLiteStore) GetActiveAlerts(ctx context.Context, assetID int64) ([]models.PriceAlert, error) {
	query := "SELECT " + alertColumns + " FROM price_alert WHERE active = 1 AND triggered = 0"
	args := []interface{}{}
	if assetID != 0 {
		query += " AND asset_id = ?"
		args = append(args, assetID)
	}
	query += " ORDER BY id"
	return s.queryAlerts(ctx, query, args...)
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]models.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// alertState reports why a conditional alert update matched no row.
func alertState(ctx context.Context, tx *sql.Tx, id int64) (active, triggered bool, err error) {
	err = tx.QueryRowContext(ctx, "SELECT active, triggered FROM price_alert WHERE id = ?", id).Scan(&active, &triggered)
	if err == sql.ErrNoRows {
		return false, false, fmt.Errorf("alert %d: %w", id, apperrors.ErrAlertNotFound)
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read alert state: %w", err)
	}
	return active, triggered, nil
}

// MarkTriggered records that the alert fired at the given time. The update
// only applies to an active, untriggered row: an already triggered alert
// yields ErrAlreadyTriggered and a deactivated one ErrAlertInactive, both
// leaving the row untouched.
func (s *SQLiteStore) MarkTriggered(ctx context.Context, id int64, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE price_alert
			SET triggered = 1, triggered_at = ?
			WHERE id = ? AND active = 1 AND triggered = 0
		`, at.UTC(), id)
		if err != nil {
			return mapError("price_alert", "trigger", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		active, triggered, err := alertState(ctx, tx, id)
		if err != nil {
			return err
		}
		if triggered {
			return fmt.Errorf("alert %d: %w", id, apperrors.ErrAlreadyTriggered)
		}
		if !active {
			return fmt.Errorf("alert %d: %w", id, apperrors.ErrAlertInactive)
		}
		return fmt.Errorf("alert %d: trigger matched no row: %w", id, apperrors.ErrDatabaseError)
	})
}

// MarkNotificationSent flags a triggered alert as delivered.
func (s *SQLiteStore) MarkNotificationSent(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE price_alert SET notification_sent = 1
			WHERE id = ? AND triggered = 1
		`, id)
		if err != nil {
			return mapError("price_alert", "mark notified", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if _, _, err := alertState(ctx, tx, id); err != nil {
			return err
		}
		return fmt.Errorf("alert %d: %w", id, apperrors.ErrNotTriggered)
	})
}

// DeactivateAlert stops further evaluation of an alert.
func (s *SQLiteStore) DeactivateAlert(ctx context.Context, id int64) error {
	return s.updateAlert(ctx, id, "deactivate", "UPDATE price_alert SET active = 0 WHERE id = ?")
}

// ResetAlert re-arms an alert: triggered, triggered_at and notification_sent
// are cleared and the alert is re-activated in a single statement.
func (s *SQLiteStore) ResetAlert(ctx context.Context, id int64) error {
	return s.updateAlert(ctx, id, "reset", `
		UPDATE price_alert
		SET active = 1, triggered = 0, triggered_at = NULL, notification_sent = 0
		WHERE id = ?
	`)
}

// DeleteAlert removes an alert.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, id int64) error {
	return s.updateAlert(ctx, id, "delete", "DELETE FROM price_alert WHERE id = ?")
}

func (s *SQLiteStore) updateAlert(ctx context.Context, id int64, op, query string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return mapError("price_alert", op, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("alert %d: %w", id, apperrors.ErrAlertNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Int64("alert_id", id).Str("operation", op).Msg("Price alert updated")
	return nil
}
