package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/pkg/utils"
)

func newTransactionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transaction", "transactions"},
		Short:   "Record buys and sells",
	}
	cmd.AddCommand(newTransactionAddCmd(app))
	cmd.AddCommand(newTransactionListCmd(app))
	cmd.AddCommand(newTransactionDeleteCmd(app))
	return cmd
}

func newTransactionAddCmd(app *App) *cobra.Command {
	var date, currency, notes string

	cmd := &cobra.Command{
		Use:     "add <buy|sell> <symbol> <quantity> <price>",
		Short:   "Record a buy or sell",
		Example: `  portfolio tx add buy VWCE 10 104.32 --date 2024-01-15`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			kind, err := models.ParseTransactionType(args[0])
			if err != nil {
				return err
			}
			asset, err := resolveAsset(ctx, s, args[1])
			if err != nil {
				return err
			}
			qty, err := app.Validator.Amount("quantity", args[2])
			if err != nil {
				return err
			}
			price, err := app.Validator.Amount("price", args[3])
			if err != nil {
				return err
			}
			day, err := parseDateArg("date", date, app.now())
			if err != nil {
				return err
			}
			if err := app.Validator.Date("date", day); err != nil {
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

			tx := &models.Transaction{
				AssetID:  asset.ID,
				Type:     kind,
				Quantity: qty,
				Price:    price,
				Currency: cur,
				Date:     day,
				Notes:    cleanNotes,
			}
			if err := portfolio.NewService(s, app.Logger).RecordTransaction(ctx, tx); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(tx)
			}
			output.Success("✓ Transaction %d: %s %s %s @ %s", tx.ID, kind, utils.FormatQuantity(qty), asset.Symbol,
				utils.FormatMoney(price, cur))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "trade date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: asset currency)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newTransactionListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list [symbol]",
		Short: "List transactions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			var assetID int64
			if len(args) == 1 {
				asset, err := resolveAsset(ctx, s, args[0])
				if err != nil {
					return err
				}
				assetID = asset.ID
			}
			txs, err := s.GetTransactions(ctx, assetID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(txs)
			}
			if len(txs) == 0 {
				output.Dim("No transactions found.")
				return nil
			}

			symbols, err := assetSymbols(cmd, s)
			if err != nil {
				return err
			}
			table := NewTable(output, "ID", "DATE", "TYPE", "SYMBOL", "QUANTITY", "PRICE", "TOTAL")
			for _, t := range txs {
				table.AddRow(
					strconv.FormatInt(t.ID, 10),
					FormatDate(t.Date),
					string(t.Type),
					symbols[t.AssetID],
					utils.FormatQuantity(t.Quantity),
					utils.FormatMoney(t.Price, t.Currency),
					utils.FormatMoney(t.Price.Mul(t.Quantity), t.Currency),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newTransactionDeleteCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Long: `Delete a recorded buy or sell. A deletion that would leave the asset's
history selling more than it bought is refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}
			id, err := parseID("transaction", args[0])
			if err != nil {
				return err
			}
			tx, err := s.GetTransaction(ctx, id)
			if err != nil {
				return err
			}
			if !yes && !output.IsJSON() {
				ok, err := confirm(cmd, fmt.Sprintf("Delete transaction %d (%s %s on %s)?",
					id, tx.Type, utils.FormatQuantity(tx.Quantity), FormatDate(tx.Date)))
				if err != nil {
					return err
				}
				if !ok {
					output.Dim("Cancelled.")
					return nil
				}
			}
			if _, err := portfolio.NewService(s, app.Logger).DeleteTransaction(ctx, id); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"deleted": id})
			}
			output.Success("✓ Transaction %d deleted", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
