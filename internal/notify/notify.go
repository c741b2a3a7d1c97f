// Package notify delivers triggered price alerts to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/pkg/utils"
)

// ErrNoChannels is returned when a notification has nowhere to go.
var ErrNoChannels = errors.New("no notification channel enabled")

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationAlert  NotificationType = "alert"
	NotificationBackup NotificationType = "backup"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in cfg.
// When notifications are enabled but no channel is, alerts go to the log.
func NewMultiNotifier(cfg *config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		logger:   logger.With().Str("component", "notify").Logger(),
	}

	if !cfg.Enabled {
		return mn
	}

	if cfg.Desktop.Enabled {
		mn.channels = append(mn.channels, NewDesktopNotifier(cfg.Desktop))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if len(mn.channels) == 0 {
		mn.channels = append(mn.channels, NewLogNotifier(mn.logger))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	names := make([]string, 0, len(mn.channels))
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// Send sends a notification to all enabled channels. Delivery succeeds when
// at least one channel accepts the notification; failures of the other
// channels are logged. When every channel fails the joined errors are
// returned.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var (
		errs      []error
		delivered int
	)
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		if len(errs) == 0 {
			return ErrNoChannels
		}
		return fmt.Errorf("notification errors: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		mn.logger.Warn().Err(err).Str("title", n.Title).Msg("Notification channel failed")
	}
	return nil
}

// BackupFailedNotification reports a scheduled backup that could not be written.
func BackupFailedNotification(err error, at time.Time) Notification {
	return Notification{
		Type:      NotificationBackup,
		Title:     "Daily backup failed",
		Message:   err.Error(),
		Data:      map[string]interface{}{"error": err.Error()},
		Timestamp: at,
	}
}

// AlertNotification builds the notification for a triggered alert.
func AlertNotification(ta models.TriggeredAlert) Notification {
	title := fmt.Sprintf("Price alert: %s", ta.Symbol)
	switch ta.Alert.Type {
	case models.AlertAbove:
		title = fmt.Sprintf("%s above %s", ta.Symbol, ta.Alert.Threshold.String())
	case models.AlertBelow:
		title = fmt.Sprintf("%s below %s", ta.Symbol, ta.Alert.Threshold.String())
	case models.AlertChangePercent:
		title = fmt.Sprintf("%s moved %s%%", ta.Symbol, ta.Alert.Threshold.String())
	}

	data := map[string]interface{}{
		"alert_id":   ta.Alert.ID,
		"asset_id":   ta.Alert.AssetID,
		"symbol":     ta.Symbol,
		"alert_type": string(ta.Alert.Type),
		"threshold":  ta.Alert.Threshold.String(),
		"currency":   ta.Alert.Currency,
	}
	if !ta.Quote.Price.IsZero() {
		data["price"] = ta.Quote.Price.String()
		data["price_display"] = utils.FormatMoney(ta.Quote.Price, ta.Alert.Currency)
	}

	ts := time.Now()
	if ta.Alert.TriggeredAt != nil {
		ts = *ta.Alert.TriggeredAt
		data["triggered_at"] = ts.UTC().Format(time.RFC3339)
	}

	return Notification{
		Type:      NotificationAlert,
		Title:     title,
		Message:   ta.Message,
		Data:      data,
		Timestamp: ts,
	}
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name returns the name of the notifier.
func (l *LogNotifier) Name() string {
	return "log"
}

// IsEnabled returns whether the notifier is enabled.
func (l *LogNotifier) IsEnabled() bool {
	return true
}

// Send logs the notification.
func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	event := l.logger.Info().
		Str("type", string(n.Type)).
		Str("title", n.Title).
		Time("at", n.Timestamp)
	for k, v := range n.Data {
		event = event.Interface(k, v)
	}
	event.Msg(n.Message)
	return nil
}
