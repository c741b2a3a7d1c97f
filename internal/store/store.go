// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"portfolio-tracker/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Assets
	CreateAsset(ctx context.Context, asset models.NewAsset) (*models.Asset, error)
	GetAsset(ctx context.Context, id int64) (*models.Asset, error)
	GetAssetBySymbol(ctx context.Context, symbol string) (*models.Asset, error)
	ListAssets(ctx context.Context) ([]models.Asset, error)
	CountDependents(ctx context.Context, assetID int64) (Dependents, error)
	DeleteAsset(ctx context.Context, id int64) error

	// Dividends
	CreateDividend(ctx context.Context, dividend models.NewDividend) (*models.Dividend, error)
	GetDividend(ctx context.Context, id int64) (*models.Dividend, error)
	UpdateDividend(ctx context.Context, dividend *models.Dividend) error
	DeleteDividend(ctx context.Context, id int64) error
	GetDividends(ctx context.Context, filter DividendFilter) ([]models.Dividend, error)

	// Price alerts
	CreatePriceAlert(ctx context.Context, alert models.NewPriceAlert) (*models.PriceAlert, error)
	GetPriceAlert(ctx context.Context, id int64) (*models.PriceAlert, error)
	GetAlerts(ctx context.Context, filter AlertFilter) ([]models.PriceAlert, error)
	GetActiveAlerts(ctx context.Context, assetID int64) ([]models.PriceAlert, error)
	MarkTriggered(ctx context.Context, id int64, at time.Time) error
	MarkNotificationSent(ctx context.Context, id int64) error
	DeactivateAlert(ctx context.Context, id int64) error
	ResetAlert(ctx context.Context, id int64) error
	DeleteAlert(ctx context.Context, id int64) error

	// Prices
	SavePrice(ctx context.Context, price models.Price) error
	GetPrices(ctx context.Context, assetID int64, limit int) ([]models.Price, error)
	GetPriceHistory(ctx context.Context, to time.Time) ([]models.Price, error)
	DeletePrice(ctx context.Context, assetID int64, day time.Time) error
	GetLatestPrices(ctx context.Context) (map[int64]models.Quote, error)

	// Transactions
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	GetTransactions(ctx context.Context, assetID int64) ([]models.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error

	// Maintenance
	CheckIntegrity(ctx context.Context) ([]string, error)
	ForeignKeyViolations(ctx context.Context) (int, error)
	Backup(ctx context.Context, destPath string) error

	// Lifecycle
	Close() error
}

// DividendFilter represents filters for querying dividends. Zero values are
// ignored; From and To are inclusive calendar dates.
type DividendFilter struct {
	AssetID  int64
	From     time.Time
	To       time.Time
	Currency string
	Type     models.DividendType
	Limit    int
}

// AlertFilter represents filters for querying price alerts.
type AlertFilter struct {
	AssetID          int64
	Active           *bool
	Triggered        *bool
	NotificationSent *bool
	Limit            int
}

// Dependents counts the rows owned by an asset that a delete would cascade to.
type Dependents struct {
	Dividends    int
	Alerts       int
	Prices       int
	Transactions int
}

// Total returns the number of dependent rows.
func (d Dependents) Total() int {
	return d.Dividends + d.Alerts + d.Prices + d.Transactions
}

// Bool returns a pointer to b, for use in filters.
func Bool(b bool) *bool {
	return &b
}
