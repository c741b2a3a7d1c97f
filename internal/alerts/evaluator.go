package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
)

// Store is the subset of the data store the evaluator needs.
type Store interface {
	GetActiveAlerts(ctx context.Context, assetID int64) ([]models.PriceAlert, error)
	MarkTriggered(ctx context.Context, id int64, at time.Time) error
	ListAssets(ctx context.Context) ([]models.Asset, error)
}

// PriceSource supplies the current price snapshot.
type PriceSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// LatestPrices is the subset of the data store that serves stored closes.
type LatestPrices interface {
	GetLatestPrices(ctx context.Context) (map[int64]models.Quote, error)
}

// StoredPrices is a PriceSource backed by the latest stored closes.
type StoredPrices struct {
	Store LatestPrices
}

// Snapshot implements PriceSource.
func (p StoredPrices) Snapshot(ctx context.Context) (Snapshot, error) {
	quotes, err := p.Store.GetLatestPrices(ctx)
	if err != nil {
		return nil, err
	}
	return Snapshot(quotes), nil
}

// Evaluator checks active alerts against price snapshots and persists the
// alerts that fire.
type Evaluator struct {
	store  Store
	source PriceSource
	now    func() time.Time
	logger zerolog.Logger
}

// NewEvaluator creates an evaluator using the wall clock.
func NewEvaluator(store Store, source PriceSource, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		source: source,
		now:    time.Now,
		logger: logger.With().Str("component", "alerts").Logger(),
	}
}

// SetClock replaces the evaluation clock.
func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}

// RunLatest evaluates against the snapshot supplied by the price source.
func (e *Evaluator) RunLatest(ctx context.Context) ([]models.TriggeredAlert, error) {
	if e.source == nil {
		return nil, fmt.Errorf("no price source configured")
	}
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load price snapshot: %w", err)
	}
	return e.Run(ctx, snap)
}

// Run evaluates every active, untriggered alert against snap. Alerts whose
// asset has no quote are skipped. Alerts that fire are persisted with a
// conditional update, so an alert deactivated or triggered concurrently is
// left alone. Running twice with the same snapshot triggers nothing new.
func (e *Evaluator) Run(ctx context.Context, snap Snapshot) ([]models.TriggeredAlert, error) {
	pending, err := e.store.GetActiveAlerts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load active alerts: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	assets, err := e.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}
	byID := make(map[int64]models.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	now := e.now()
	var fired []models.TriggeredAlert
	for _, alert := range pending {
		if err := ctx.Err(); err != nil {
			return fired, err
		}

		quote, ok := snap[alert.AssetID]
		if !ok {
			continue
		}

		updated, triggered, err := Evaluate(alert, quote, now)
		if err != nil || !triggered {
			continue
		}

		if err := e.store.MarkTriggered(ctx, alert.ID, *updated.TriggeredAt); err != nil {
			if apperrors.Is(err, apperrors.ErrAlreadyTriggered) || apperrors.Is(err, apperrors.ErrAlertInactive) ||
				apperrors.Is(err, apperrors.ErrAlertNotFound) {
				e.logger.Debug().Int64("alert_id", alert.ID).Err(err).Msg("Alert changed during evaluation")
				continue
			}
			return fired, fmt.Errorf("failed to persist trigger for alert %d: %w", alert.ID, err)
		}

		asset := byID[alert.AssetID]
		ta := models.TriggeredAlert{
			Alert:   updated,
			Symbol:  asset.Symbol,
			Name:    asset.Name,
			Quote:   quote,
			Message: Describe(updated, asset.Symbol, quote),
		}
		logging.LogAlert(e.logger, alert.ID, asset.Symbol, string(alert.Type), quote.Price)
		fired = append(fired, ta)
	}

	return fired, nil
}
