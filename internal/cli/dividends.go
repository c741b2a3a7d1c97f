package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/export"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/internal/store"
	"portfolio-tracker/pkg/utils"
)

func newDividendCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dividend",
		Aliases: []string{"dividends", "div"},
		Short:   "Record and analyse dividend payments",
	}
	cmd.AddCommand(newDividendAddCmd(app))
	cmd.AddCommand(newDividendListCmd(app))
	cmd.AddCommand(newDividendEditCmd(app))
	cmd.AddCommand(newDividendDeleteCmd(app))
	cmd.AddCommand(newDividendSummaryCmd(app))
	cmd.AddCommand(newDividendExportCmd(app))
	cmd.AddCommand(newDividendImportCmd(app))
	return cmd
}

func newDividendAddCmd(app *App) *cobra.Command {
	var date, amount, tax, currency, dtype, notes string

	cmd := &cobra.Command{
		Use:     "add <symbol>",
		Short:   "Record a dividend payment",
		Example: `  portfolio dividend add ALV --date 2024-05-10 --amount 11.40 --tax 3.01`,
		Args:    cobra.ExactArgs(1),
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
			payDate, err := parseDateArg("date", date, app.now())
			if err != nil {
				return err
			}
			if err := app.Validator.Date("date", payDate); err != nil {
				return err
			}
			gross, err := app.Validator.Amount("amount", amount)
			if err != nil {
				return err
			}
			withheld, err := app.Validator.OptionalAmount("tax", tax)
			if err != nil {
				return err
			}
			cur, err := app.defaultCurrency(currency, asset.Currency)
			if err != nil {
				return err
			}
			kind, err := models.ParseDividendType(dtype)
			if err != nil {
				return err
			}
			cleanNotes, err := app.Validator.Text("notes", notes)
			if err != nil {
				return err
			}

			d, err := s.CreateDividend(ctx, models.NewDividend{
				AssetID:     asset.ID,
				PaymentDate: payDate,
				Amount:      gross,
				Currency:    cur,
				TaxWithheld: withheld,
				Type:        kind,
				Notes:       cleanNotes,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(d)
			}
			output.Success("✓ Dividend %d recorded: %s %s on %s (net %s)",
				d.ID, asset.Symbol, utils.FormatMoney(d.Amount, d.Currency), FormatDate(d.PaymentDate),
				utils.FormatMoney(d.Net(), d.Currency))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "payment date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&amount, "amount", "", "gross amount (required)")
	cmd.Flags().StringVar(&tax, "tax", "", "tax withheld")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: asset currency)")
	cmd.Flags().StringVar(&dtype, "type", "", "regular, special or capital_return")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// dividendFilterFlags binds the flags shared by list, summary and export.
type dividendFilterFlags struct {
	symbol, from, to, currency, dtype string
	limit                             int
}

func (f *dividendFilterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "only this asset")
	cmd.Flags().StringVar(&f.from, "from", "", "first payment date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last payment date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.currency, "currency", "", "only this currency")
	cmd.Flags().StringVar(&f.dtype, "type", "", "only this dividend type")
}

func (f *dividendFilterFlags) filter(cmd *cobra.Command, app *App, s store.DataStore) (store.DividendFilter, error) {
	filter := store.DividendFilter{Limit: f.limit}
	if f.symbol != "" {
		asset, err := resolveAsset(cmd.Context(), s, f.symbol)
		if err != nil {
			return filter, err
		}
		filter.AssetID = asset.ID
	}
	var err error
	if filter.From, err = parseOptionalDate("from", f.from); err != nil {
		return filter, err
	}
	if filter.To, err = parseOptionalDate("to", f.to); err != nil {
		return filter, err
	}
	if f.currency != "" {
		if filter.Currency, err = app.Validator.Currency(f.currency); err != nil {
			return filter, err
		}
	}
	if f.dtype != "" {
		if filter.Type, err = models.ParseDividendType(f.dtype); err != nil {
			return filter, err
		}
	}
	return filter, nil
}

func assetSymbols(cmd *cobra.Command, s store.DataStore) (map[int64]string, error) {
	assets, err := s.ListAssets(cmd.Context())
	if err != nil {
		return nil, err
	}
	symbols := make(map[int64]string, len(assets))
	for _, a := range assets {
		symbols[a.ID] = a.Symbol
	}
	return symbols, nil
}

func newDividendListCmd(app *App) *cobra.Command {
	var flags dividendFilterFlags

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List dividends",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			filter, err := flags.filter(cmd, app, s)
			if err != nil {
				return err
			}
			dividends, err := s.GetDividends(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(dividends)
			}
			if len(dividends) == 0 {
				output.Dim("No dividends found.")
				return nil
			}

			symbols, err := assetSymbols(cmd, s)
			if err != nil {
				return err
			}
			table := NewTable(output, "ID", "DATE", "SYMBOL", "GROSS", "TAX", "NET", "TYPE", "NOTES")
			for _, d := range dividends {
				table.AddRow(
					strconv.FormatInt(d.ID, 10),
					FormatDate(d.PaymentDate),
					symbols[d.AssetID],
					utils.FormatMoney(d.Amount, d.Currency),
					utils.FormatMoney(d.TaxWithheld, d.Currency),
					utils.FormatMoney(d.Net(), d.Currency),
					string(d.Type),
					Truncate(d.Notes, 30),
				)
			}
			table.Render()
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum rows (0 = all)")
	return cmd
}

func newDividendEditCmd(app *App) *cobra.Command {
	var date, amount, tax, currency, dtype, notes string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a recorded dividend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}
			id, err := parseID("dividend", args[0])
			if err != nil {
				return err
			}
			d, err := s.GetDividend(ctx, id)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("date") {
				if d.PaymentDate, err = parseDateArg("date", date, app.now()); err != nil {
					return err
				}
				if err := app.Validator.Date("date", d.PaymentDate); err != nil {
					return err
				}
			}
			if flags.Changed("amount") {
				if d.Amount, err = app.Validator.Amount("amount", amount); err != nil {
					return err
				}
			}
			if flags.Changed("tax") {
				if d.TaxWithheld, err = app.Validator.OptionalAmount("tax", tax); err != nil {
					return err
				}
			}
			if flags.Changed("currency") {
				if d.Currency, err = app.Validator.Currency(currency); err != nil {
					return err
				}
			}
			if flags.Changed("type") {
				if d.Type, err = models.ParseDividendType(dtype); err != nil {
					return err
				}
			}
			if flags.Changed("notes") {
				if d.Notes, err = app.Validator.Text("notes", notes); err != nil {
					return err
				}
			}

			if err := s.UpdateDividend(ctx, d); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(d)
			}
			output.Success("✓ Dividend %d updated", d.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "payment date YYYY-MM-DD")
	cmd.Flags().StringVar(&amount, "amount", "", "gross amount")
	cmd.Flags().StringVar(&tax, "tax", "", "tax withheld")
	cmd.Flags().StringVar(&currency, "currency", "", "currency")
	cmd.Flags().StringVar(&dtype, "type", "", "regular, special or capital_return")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newDividendDeleteCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dividend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}
			id, err := parseID("dividend", args[0])
			if err != nil {
				return err
			}
			d, err := s.GetDividend(ctx, id)
			if err != nil {
				return err
			}

			if !yes && !output.IsJSON() {
				ok, err := confirm(cmd, fmt.Sprintf("Delete dividend %d of %s on %s?",
					d.ID, utils.FormatMoney(d.Amount, d.Currency), FormatDate(d.PaymentDate)))
				if err != nil {
					return err
				}
				if !ok {
					output.Dim("Cancelled.")
					return nil
				}
			}

			if err := s.DeleteDividend(ctx, id); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"deleted": id})
			}
			output.Success("✓ Dividend %d deleted", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newDividendSummaryCmd(app *App) *cobra.Command {
	var flags dividendFilterFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Totals per asset and currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			filter, err := flags.filter(cmd, app, s)
			if err != nil {
				return err
			}

			var totals []portfolio.DividendTotal
			if filter.AssetID != 0 && filter.Currency == "" && filter.Type == "" {
				svc := portfolio.NewService(s, app.Logger)
				totals, err = svc.AssetDividendTotals(cmd.Context(), filter.AssetID, filter.From, filter.To)
			} else {
				var dividends []models.Dividend
				dividends, err = s.GetDividends(cmd.Context(), filter)
				totals = portfolio.DividendTotals(dividends)
			}
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(totals)
			}
			if len(totals) == 0 {
				output.Dim("No dividends found.")
				return nil
			}

			symbols, err := assetSymbols(cmd, s)
			if err != nil {
				return err
			}
			table := NewTable(output, "SYMBOL", "CURRENCY", "PAYMENTS", "GROSS", "TAX", "NET", "AVERAGE")
			for _, t := range totals {
				table.AddRow(
					symbols[t.AssetID],
					t.Currency,
					strconv.Itoa(t.Count),
					utils.FormatMoney(t.Gross, t.Currency),
					utils.FormatMoney(t.Tax, t.Currency),
					utils.FormatMoney(t.Net, t.Currency),
					utils.FormatMoney(t.Average(), t.Currency),
				)
			}
			table.Render()

			output.Println()
			byCurrency := portfolio.DividendsByCurrency(totals)
			for _, cur := range sortedKeys(byCurrency) {
				t := byCurrency[cur]
				output.Bold("Total %s: net %s from %d payment(s)", cur, utils.FormatMoney(t.Net, cur), t.Count)
			}
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newDividendExportCmd(app *App) *cobra.Command {
	var flags dividendFilterFlags
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export dividends as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}
			filter, err := flags.filter(cmd, app, s)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if file != "" && file != "-" {
				f, err := os.Create(file)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", file, err)
				}
				defer f.Close()
				w = f
			}

			n, err := export.New(s, app.Validator, app.Logger).ExportDividends(cmd.Context(), w, filter)
			if err != nil {
				return err
			}
			if file != "" && file != "-" {
				NewOutput(cmd).Success("✓ Exported %d dividend(s) to %s", n, file)
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVarP(&file, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newDividendImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import dividends from CSV",
		Long: `Import dividends from a CSV file with the columns
symbol,date,gross,tax,currency,type,notes (name and net are ignored).

Every row is inserted on its own. Rows for unknown symbols, invalid rows and
payments that already exist for the same asset and date are reported and
skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			result, err := export.New(s, app.Validator, app.Logger).ImportDividends(cmd.Context(), f)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				rejected := make([]map[string]interface{}, 0, len(result.Rejected))
				for _, r := range result.Rejected {
					rejected = append(rejected, map[string]interface{}{
						"line": r.Line, "symbol": r.Symbol, "date": r.Date, "error": r.Err.Error(),
					})
				}
				return output.JSON(map[string]interface{}{
					"imported":   result.Imported,
					"duplicates": result.Duplicates(),
					"rejected":   rejected,
				})
			}

			output.Success("✓ Imported %d dividend(s)", result.Imported)
			for _, r := range result.Rejected {
				output.Warning("  %v", r)
			}
			return nil
		},
	}
}
