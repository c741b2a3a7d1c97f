package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/pkg/utils"
)

func newAssetCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "asset",
		Aliases: []string{"assets"},
		Short:   "Manage tracked assets",
	}
	cmd.AddCommand(newAssetAddCmd(app))
	cmd.AddCommand(newAssetListCmd(app))
	cmd.AddCommand(newAssetDeleteCmd(app))
	return cmd
}

func newAssetAddCmd(app *App) *cobra.Command {
	var name, quantity, currency string

	cmd := &cobra.Command{
		Use:   "add <symbol>",
		Short: "Add an asset",
		Example: `  portfolio asset add VWCE --name "Vanguard FTSE All-World" --currency EUR
  portfolio asset add BTC-EUR --quantity 0.25`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}

			symbol, err := app.Validator.Symbol(args[0])
			if err != nil {
				return err
			}
			cleanName, err := app.Validator.Text("name", name)
			if err != nil {
				return err
			}
			qty, err := app.Validator.OptionalAmount("quantity", quantity)
			if err != nil {
				return err
			}
			cur, err := app.defaultCurrency(currency, "")
			if err != nil {
				return err
			}

			asset, err := s.CreateAsset(cmd.Context(), models.NewAsset{
				Symbol:   symbol,
				Name:     cleanName,
				Quantity: qty,
				Currency: cur,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(asset)
			}
			output.Success("✓ Asset %s added (id %d)", asset.Symbol, asset.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&quantity, "quantity", "", "units held when no transactions are recorded")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency (default from config)")
	return cmd
}

func newAssetListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}

			assets, err := s.ListAssets(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(assets)
			}
			if len(assets) == 0 {
				output.Dim("No assets yet. Add one with 'portfolio asset add <symbol>'.")
				return nil
			}

			table := NewTable(output, "ID", "SYMBOL", "NAME", "QUANTITY", "CURRENCY", "ADDED")
			for _, a := range assets {
				table.AddRow(
					strconv.FormatInt(a.ID, 10),
					a.Symbol,
					Truncate(a.Name, 40),
					utils.FormatQuantity(a.Quantity),
					a.Currency,
					FormatDate(a.CreatedAt),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newAssetDeleteCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <symbol|id>",
		Short: "Delete an asset with its dividends, alerts, prices and transactions",
		Args:  cobra.ExactArgs(1),
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
			deps, err := s.CountDependents(ctx, asset.ID)
			if err != nil {
				return err
			}

			if !yes {
				if output.IsJSON() {
					return fmt.Errorf("refusing to delete %s without --yes in JSON mode: %w", asset.Symbol, errAborted)
				}
				output.Warning("Deleting %s also deletes %d dividend(s), %d alert(s), %d price(s) and %d transaction(s).",
					asset.Symbol, deps.Dividends, deps.Alerts, deps.Prices, deps.Transactions)
				ok, err := confirm(cmd, "Continue?")
				if err != nil {
					return err
				}
				if !ok {
					output.Dim("Cancelled.")
					return nil
				}
			}

			var backupFile string
			if app.Config.Backup.BeforeDelete {
				info, err := app.Backups.Create(ctx, "delete_asset_"+asset.Symbol)
				if err != nil {
					return fmt.Errorf("backup before delete failed, asset kept: %w", err)
				}
				backupFile = info.Path
			}

			if err := s.DeleteAsset(ctx, asset.ID); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"deleted":    asset.Symbol,
					"dependents": deps,
					"backup":     backupFile,
				})
			}
			output.Success("✓ Deleted %s and %d dependent row(s)", asset.Symbol, deps.Total())
			if backupFile != "" {
				output.Dim("Backup: %s", backupPath(backupFile))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

// resolveAsset looks an asset up by numeric id or by symbol.
func resolveAsset(ctx context.Context, s store.DataStore, ref string) (*models.Asset, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.GetAsset(ctx, id)
	}
	return s.GetAssetBySymbol(ctx, ref)
}

