package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/alerts"
	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/notify"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/pkg/utils"
)

func newAlertCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alert",
		Aliases: []string{"alerts"},
		Short:   "Manage price alerts",
	}
	cmd.AddCommand(newAlertAddCmd(app))
	cmd.AddCommand(newAlertListCmd(app))
	cmd.AddCommand(newAlertStateCmd(app, "deactivate", "Stop evaluating an alert", "deactivated",
		func(s store.DataStore) func(*cobra.Command, int64) error {
			return func(cmd *cobra.Command, id int64) error { return s.DeactivateAlert(cmd.Context(), id) }
		}))
	cmd.AddCommand(newAlertStateCmd(app, "reset", "Re-arm a triggered or deactivated alert", "reset",
		func(s store.DataStore) func(*cobra.Command, int64) error {
			return func(cmd *cobra.Command, id int64) error { return s.ResetAlert(cmd.Context(), id) }
		}))
	cmd.AddCommand(newAlertDeleteCmd(app))
	cmd.AddCommand(newAlertCheckCmd(app))
	return cmd
}

func newAlertAddCmd(app *App) *cobra.Command {
	var alertType, threshold, currency, notes string

	cmd := &cobra.Command{
		Use:   "add <symbol>",
		Short: "Create a price alert",
		Example: `  portfolio alert add ASML --type above --threshold 900
  portfolio alert add BTC-EUR --type change_percent --threshold 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			asset, err := resolveAsset(ctx, s, args[0])
			if err != nil {
				return err
			}
			kind, err := models.ParseAlertType(alertType)
			if err != nil {
				return err
			}
			value, err := app.Validator.Threshold(threshold)
			if err != nil {
				return err
			}
			cur, err := app.defaultCurrency(currency, asset.Currency)
			if err != nil {
				return err
			}
			cleanNotes, err := app.Validator.Text("notes", notes)
			if err != nil {
				return err
			}

			alert, err := s.CreatePriceAlert(ctx, models.NewPriceAlert{
				AssetID:   asset.ID,
				Type:      kind,
				Threshold: value,
				Currency:  cur,
				Notes:     cleanNotes,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(alert)
			}
			output.Success("✓ Alert %d created: %s %s", alert.ID, asset.Symbol, describeCondition(*alert))
			return nil
		},
	}

	cmd.Flags().StringVar(&alertType, "type", "", "above, below or change_percent (required)")
	cmd.Flags().StringVar(&threshold, "threshold", "", "price, or percent for change_percent (required)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: asset currency)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("threshold")
	return cmd
}

func describeCondition(a models.PriceAlert) string {
	switch a.Type {
	case models.AlertAbove:
		return ">= " + utils.FormatMoney(a.Threshold, a.Currency)
	case models.AlertBelow:
		return "<= " + utils.FormatMoney(a.Threshold, a.Currency)
	case models.AlertChangePercent:
		return "moves " + a.Threshold.String() + "%"
	default:
		return string(a.Type)
	}
}

func newAlertListCmd(app *App) *cobra.Command {
	var symbol string
	var activeOnly, triggeredOnly, unnotified bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List price alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			var filter store.AlertFilter
			if symbol != "" {
				asset, err := resolveAsset(ctx, s, symbol)
				if err != nil {
					return err
				}
				filter.AssetID = asset.ID
			}
			if activeOnly {
				filter.Active = store.Bool(true)
			}
			if triggeredOnly {
				filter.Triggered = store.Bool(true)
			}
			if unnotified {
				filter.Triggered = store.Bool(true)
				filter.NotificationSent = store.Bool(false)
			}

			list, err := s.GetAlerts(ctx, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Dim("No alerts found.")
				return nil
			}

			symbols, err := assetSymbols(cmd, s)
			if err != nil {
				return err
			}
			table := NewTable(output, "ID", "SYMBOL", "CONDITION", "STATE", "TRIGGERED", "NOTIFIED", "NOTES")
			for _, a := range list {
				table.AddRow(
					strconv.FormatInt(a.ID, 10),
					symbols[a.AssetID],
					describeCondition(a),
					alertState(output, a),
					FormatTimestamp(a.TriggeredAt),
					FormatBool(a.NotificationSent),
					Truncate(a.Notes, 30),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "only this asset")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active alerts")
	cmd.Flags().BoolVar(&triggeredOnly, "triggered", false, "only triggered alerts")
	cmd.Flags().BoolVar(&unnotified, "unnotified", false, "only triggered alerts without a sent notification")
	return cmd
}

func alertState(output *Output, a models.PriceAlert) string {
	switch {
	case !a.Active:
		return output.DimText("inactive")
	case a.Triggered:
		return output.Yellow("triggered")
	default:
		return output.Green("watching")
	}
}

func newAlertStateCmd(app *App, use, short, verb string, op func(store.DataStore) func(*cobra.Command, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			id, err := parseID("alert", args[0])
			if err != nil {
				return err
			}
			if err := op(s)(cmd, id); err != nil {
				return err
			}
			if output.IsJSON() {
				alert, err := s.GetPriceAlert(cmd.Context(), id)
				if err != nil {
					return err
				}
				return output.JSON(alert)
			}
			output.Success("✓ Alert %d %s", id, verb)
			return nil
		},
	}
}

func newAlertDeleteCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a price alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			id, err := parseID("alert", args[0])
			if err != nil {
				return err
			}
			if !yes && !output.IsJSON() {
				ok, err := confirm(cmd, fmt.Sprintf("Delete alert %d?", id))
				if err != nil {
					return err
				}
				if !ok {
					output.Dim("Cancelled.")
					return nil
				}
			}
			if err := s.DeleteAlert(cmd.Context(), id); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"deleted": id})
			}
			output.Success("✓ Alert %d deleted", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newAlertCheckCmd(app *App) *cobra.Command {
	var prices []string
	var send bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate alerts against the latest prices",
		Long: `Evaluate every active, untriggered alert once.

Prices come from the latest stored closes ('portfolio price set'). Use
--price SYMBOL=VALUE to evaluate against a quote without storing it.`,
		Example: `  portfolio alert check
  portfolio alert check --price ASML=912.40 --notify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			snap, err := alerts.StoredPrices{Store: s}.Snapshot(ctx)
			if err != nil {
				return err
			}
			if snap == nil {
				snap = alerts.Snapshot{}
			}
			for _, p := range prices {
				sym, raw, ok := strings.Cut(p, "=")
				if !ok {
					return apperrors.NewValidationError("price", p, "must be SYMBOL=VALUE")
				}
				asset, err := resolveAsset(ctx, s, sym)
				if err != nil {
					return err
				}
				value, err := app.Validator.Amount("price", raw)
				if err != nil {
					return err
				}
				q := snap[asset.ID]
				if !q.Price.IsZero() {
					q.PreviousClose = q.Price
				}
				q.AssetID = asset.ID
				q.Price = value
				q.Currency = asset.Currency
				q.AsOf = app.now()
				snap[asset.ID] = q
			}

			evaluator := alerts.NewEvaluator(s, nil, app.Logger)
			evaluator.SetClock(app.now)
			fired, err := evaluator.Run(ctx, snap)
			if err != nil {
				return err
			}

			sent := 0
			if send {
				mn := notify.NewMultiNotifier(&app.Config.Notifications, app.Logger)
				sent, err = notify.NewDispatcher(s, mn, app.Logger).Dispatch(ctx)
				if err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"triggered":     fired,
					"notifications": sent,
				})
			}
			if len(fired) == 0 {
				output.Dim("No alerts triggered.")
			}
			for _, ta := range fired {
				output.Warning("⚑ Alert %d: %s", ta.Alert.ID, ta.Message)
			}
			if send {
				output.Dim("%d notification(s) sent", sent)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&prices, "price", nil, "quote override SYMBOL=VALUE (repeatable)")
	cmd.Flags().BoolVar(&send, "notify", false, "send notifications for triggered alerts")
	return cmd
}
