package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/alerts"
	"portfolio-tracker/internal/notify"
	"portfolio-tracker/internal/scheduler"
)

func newWatchCmd(app *App) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Evaluate alerts and take backups on a schedule",
		Long: `Run in the foreground, evaluating price alerts against the latest stored
prices on alerts.schedule and writing the daily backup on backup.schedule.
Triggered alerts are sent through the configured notification channels.

Stop with Ctrl+C; running jobs are allowed to finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}

			mn := notify.NewMultiNotifier(&app.Config.Notifications, app.Logger)
			evaluator := alerts.NewEvaluator(s, alerts.StoredPrices{Store: s}, app.Logger)
			alertJob := scheduler.NewAlertJob(evaluator, notify.NewDispatcher(s, mn, app.Logger), app.Logger)
			backupJob := scheduler.NewBackupJob(app.Backups, app.Logger)
			backupJob.SetNotifier(mn)

			sched := scheduler.New(app.Logger)
			if app.Config.Backup.Enabled {
				// Catch up on today's backup before the first tick.
				if err := sched.RunNow(backupJob); err != nil {
					output.Warning("Backup failed: %v", err)
				}
			}
			if app.Config.Alerts.Enabled {
				if err := sched.RunNow(alertJob); err != nil {
					return err
				}
			}
			if once {
				return nil
			}

			if app.Config.Alerts.Enabled {
				if err := sched.AddJob(app.Config.Alerts.Schedule, alertJob); err != nil {
					return err
				}
			}
			if app.Config.Backup.Enabled {
				if err := sched.AddJob(app.Config.Backup.Schedule, backupJob); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched.Start()
			output.Info("Watching (alerts %s, backup %s, notify via %v). Press Ctrl+C to stop.",
				app.Config.Alerts.Schedule, app.Config.Backup.Schedule, mn.Channels())
			<-ctx.Done()

			output.Dim("Stopping...")
			sched.Stop()
			if ctx.Err() == context.Canceled {
				return nil
			}
			return ctx.Err()
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run each job once and exit")
	return cmd
}
