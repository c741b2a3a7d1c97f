package cli

import (
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/pkg/utils"
)

func newPriceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "price",
		Aliases: []string{"prices"},
		Short:   "Record closing prices",
	}
	cmd.AddCommand(newPriceSetCmd(app))
	cmd.AddCommand(newPriceListCmd(app))
	cmd.AddCommand(newPriceDeleteCmd(app))
	return cmd
}

func newPriceSetCmd(app *App) *cobra.Command {
	var date, currency string

	cmd := &cobra.Command{
		Use:     "set <symbol> <price>",
		Short:   "Record the closing price of an asset for a day",
		Example: `  portfolio price set ASML 912.40 --date 2024-06-03`,
		Args:    cobra.ExactArgs(2),
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
			closePrice, err := app.Validator.Amount("price", args[1])
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

			price := models.Price{
				AssetID:  asset.ID,
				Date:     day,
				Close:    closePrice,
				Currency: cur,
				Source:   models.SourceManual,
			}
			if err := s.SavePrice(ctx, price); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(price)
			}
			output.Success("✓ %s closed at %s on %s", asset.Symbol, utils.FormatMoney(closePrice, cur), FormatDate(day))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "price date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: asset currency)")
	return cmd
}

func newPriceListCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list [symbol]",
		Short: "Show stored prices, or the latest close of every asset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				asset, err := resolveAsset(ctx, s, args[0])
				if err != nil {
					return err
				}
				prices, err := s.GetPrices(ctx, asset.ID, limit)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(prices)
				}
				if len(prices) == 0 {
					output.Dim("No prices for %s.", asset.Symbol)
					return nil
				}
				table := NewTable(output, "DATE", "CLOSE", "SOURCE")
				for _, p := range prices {
					table.AddRow(FormatDate(p.Date), utils.FormatMoney(p.Close, p.Currency), p.Source)
				}
				table.Render()
				return nil
			}

			quotes, err := s.GetLatestPrices(ctx)
			if err != nil {
				return err
			}
			assets, err := s.ListAssets(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(quotes)
			}

			table := NewTable(output, "SYMBOL", "DATE", "CLOSE", "PREVIOUS", "CHANGE")
			for _, a := range assets {
				q, ok := quotes[a.ID]
				if !ok {
					table.AddRow(a.Symbol, "-", "-", "-", "-")
					continue
				}
				prev, change := "-", "-"
				if q.PreviousClose.IsPositive() {
					prev = utils.FormatMoney(q.PreviousClose, q.Currency)
					pct := q.Price.Sub(q.PreviousClose).Div(q.PreviousClose).Shift(2)
					change = output.FormatPercent(pct)
				}
				table.AddRow(a.Symbol, FormatDate(q.AsOf), utils.FormatMoney(q.Price, q.Currency), prev, change)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 30, "maximum rows for a single asset")
	return cmd
}

func newPriceDeleteCmd(app *App) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:     "delete <symbol> --date YYYY-MM-DD",
		Short:   "Remove the stored close of an asset for a day",
		Example: `  portfolio price delete ASML --date 2024-06-03`,
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
			day, err := parseDateArg("date", date, app.now())
			if err != nil {
				return err
			}
			if err := s.DeletePrice(ctx, asset.ID, day); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"symbol": asset.Symbol, "deleted": FormatDate(day)})
			}
			output.Success("✓ Removed %s close for %s", asset.Symbol, FormatDate(day))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "price date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
