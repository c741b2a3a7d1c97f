package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"portfolio-tracker/internal/backup"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/notify"
)

// AlertEvaluator evaluates pending alerts against the latest prices.
type AlertEvaluator interface {
	RunLatest(ctx context.Context) ([]models.TriggeredAlert, error)
}

// NotificationDispatcher delivers notifications for triggered alerts.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context) (int, error)
}

// AlertJob evaluates price alerts and then delivers any pending notifications.
type AlertJob struct {
	evaluator  AlertEvaluator
	dispatcher NotificationDispatcher
	log        zerolog.Logger
}

// NewAlertJob creates a new alert job. dispatcher may be nil.
func NewAlertJob(evaluator AlertEvaluator, dispatcher NotificationDispatcher, log zerolog.Logger) *AlertJob {
	return &AlertJob{
		evaluator:  evaluator,
		dispatcher: dispatcher,
		log:        logging.WithOperation(log, "alerts"),
	}
}

// Name returns the job name
func (j *AlertJob) Name() string {
	return "alerts"
}

// Run evaluates alerts, then dispatches. Notifications left over from a
// previous failed run are retried even when nothing new fired.
func (j *AlertJob) Run(ctx context.Context) error {
	fired, err := j.evaluator.RunLatest(ctx)
	if err != nil {
		return fmt.Errorf("alert evaluation failed: %w", err)
	}
	if len(fired) > 0 {
		j.log.Info().Int("triggered", len(fired)).Msg("Alerts triggered")
	}

	if j.dispatcher == nil {
		return nil
	}
	sent, err := j.dispatcher.Dispatch(ctx)
	if err != nil {
		return fmt.Errorf("notification dispatch failed: %w", err)
	}
	if sent > 0 {
		j.log.Info().Int("sent", sent).Msg("Notifications sent")
	}
	return nil
}

// Backups is the subset of the backup manager the backup job needs.
type Backups interface {
	DailyIfNeeded(ctx context.Context) (backup.Info, bool, error)
	Cleanup() (int, error)
}

// BackupJob writes the daily backup and applies retention.
type BackupJob struct {
	backups  Backups
	notifier notify.Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewBackupJob creates a new backup job.
func NewBackupJob(backups Backups, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		now:     time.Now,
		log:     logging.WithOperation(log, "backup"),
	}
}

// SetNotifier makes the job report failed backups through n.
func (j *BackupJob) SetNotifier(n notify.Notifier) {
	j.notifier = n
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates today's backup if missing and removes expired ones.
func (j *BackupJob) Run(ctx context.Context) error {
	if _, _, err := j.backups.DailyIfNeeded(ctx); err != nil {
		j.reportFailure(ctx, err)
		return fmt.Errorf("daily backup failed: %w", err)
	}
	if _, err := j.backups.Cleanup(); err != nil {
		// Backup succeeded
		j.log.Error().Err(err).Msg("Failed to rotate backups")
	}
	return nil
}

func (j *BackupJob) reportFailure(ctx context.Context, err error) {
	if j.notifier == nil {
		return
	}
	if nerr := j.notifier.Send(ctx, notify.BackupFailedNotification(err, j.now())); nerr != nil {
		j.log.Warn().Err(nerr).Msg("Failed to report backup failure")
	}
}
