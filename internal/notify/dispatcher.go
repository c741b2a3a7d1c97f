package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"portfolio-tracker/internal/alerts"
	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
)

// Store is the subset of the data store the dispatcher needs.
type Store interface {
	GetAlerts(ctx context.Context, filter store.AlertFilter) ([]models.PriceAlert, error)
	MarkNotificationSent(ctx context.Context, id int64) error
	ListAssets(ctx context.Context) ([]models.Asset, error)
	GetLatestPrices(ctx context.Context) (map[int64]models.Quote, error)
}

// Dispatcher sends one notification per triggered, unnotified alert and
// records successful deliveries.
type Dispatcher struct {
	store    Store
	notifier Notifier
	logger   zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(s Store, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    s,
		notifier: notifier,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch delivers pending notifications and returns how many were sent.
// notification_sent is set only after the notifier reports success, so a
// failed delivery is retried on the next call. Deactivation stops evaluation
// only: an alert deactivated after it fired is still delivered once.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	pending, err := d.store.GetAlerts(ctx, store.AlertFilter{
		Triggered:        store.Bool(true),
		NotificationSent: store.Bool(false),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load pending notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	assets, err := d.store.ListAssets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load assets: %w", err)
	}
	byID := make(map[int64]models.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	quotes, err := d.store.GetLatestPrices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load latest prices: %w", err)
	}

	sent := 0
	for _, alert := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		asset := byID[alert.AssetID]
		ta := models.TriggeredAlert{
			Alert:  alert,
			Symbol: asset.Symbol,
			Name:   asset.Name,
		}
		if quote, ok := quotes[alert.AssetID]; ok {
			ta.Quote = quote
			ta.Message = alerts.Describe(alert, asset.Symbol, quote)
		} else {
			ta.Message = fmt.Sprintf("%s %s alert (threshold %s) triggered", asset.Symbol, alert.Type, alert.Threshold.String())
		}

		if err := d.Notify(ctx, ta); err != nil {
			continue
		}
		sent++
	}

	return sent, nil
}

// Notify delivers a single triggered alert and marks it sent on success.
func (d *Dispatcher) Notify(ctx context.Context, ta models.TriggeredAlert) error {
	err := d.notifier.Send(ctx, AlertNotification(ta))
	logging.LogNotification(logging.WithAsset(d.logger, ta.Symbol), ta.Alert.ID, channelName(d.notifier), err)
	if err != nil {
		return err
	}

	if err := d.store.MarkNotificationSent(ctx, ta.Alert.ID); err != nil {
		// The alert was reset or deleted while the notification was in flight.
		if apperrors.Is(err, apperrors.ErrNotTriggered) || apperrors.Is(err, apperrors.ErrAlertNotFound) {
			d.logger.Debug().Int64("alert_id", ta.Alert.ID).Err(err).Msg("Alert changed during dispatch")
			return nil
		}
		return fmt.Errorf("failed to mark alert %d notified: %w", ta.Alert.ID, err)
	}
	return nil
}

func channelName(n Notifier) string {
	switch v := n.(type) {
	case *MultiNotifier:
		return strings.Join(v.Channels(), ",")
	case NotificationChannel:
		return v.Name()
	default:
		return fmt.Sprintf("%T", n)
	}
}
