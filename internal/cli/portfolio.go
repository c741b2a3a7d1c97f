package cli

import (
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/pkg/utils"
)

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Portfolio views",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Holdings with value and profit/loss at the latest prices",
		Long: `Show every asset with its quantity, average cost, latest price, value and
unrealised profit/loss, followed by totals per currency. Amounts in different
currencies are never converted or added together.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			quotes, err := s.GetLatestPrices(ctx)
			if err != nil {
				return err
			}
			summary, err := portfolio.NewService(s, app.Logger).Summary(ctx, quotes)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(summary)
			}
			if len(summary.Holdings) == 0 {
				output.Dim("No assets yet.")
				return nil
			}

			table := NewTable(output, "SYMBOL", "QUANTITY", "AVG COST", "PRICE", "VALUE", "P/L", "P/L %")
			for _, h := range summary.Holdings {
				cur := h.Asset.Currency
				avg, price, value, pnl, pct := "-", "-", "-", "-", "-"
				if h.HasCost {
					avg = utils.FormatMoney(h.AverageCost, cur)
				}
				if h.HasPrice {
					price = utils.FormatMoney(h.Price, cur)
					value = utils.FormatMoney(h.Value, cur)
				}
				if h.HasCost && h.HasPrice {
					pnl = output.FormatPnL(h.PnL.Amount, cur)
					pct = output.FormatPercent(h.PnL.Percent)
				}
				table.AddRow(h.Asset.Symbol, utils.FormatQuantity(h.Quantity), avg, price, value, pnl, pct)
			}
			table.Render()

			for _, cur := range summary.Currencies() {
				r := summary.Rollup[cur]
				output.Println()
				output.Bold("Totals %s", cur)
				output.Printf("  Value:          %s\n", utils.FormatMoney(r.Value, cur))
				output.Printf("  Cost:           %s\n", utils.FormatMoney(r.Cost, cur))
				output.Printf("  Unrealised P/L: %s (%s)\n", output.FormatPnL(r.PnL, cur), output.FormatPercent(r.Percent()))
				output.Printf("  Realised P/L:   %s\n", output.FormatPnL(r.Realized, cur))
				output.Printf("  Dividends (net): %s\n", utils.FormatMoney(r.Dividends, cur))
			}
			return nil
		},
	})
	cmd.AddCommand(newPortfolioHistoryCmd(app))

	return cmd
}

func newPortfolioHistoryCmd(app *App) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Portfolio value on every day with a stored close",
		Long: `Replay transactions against the stored daily closes and show the portfolio
value per currency for each day in the range.`,
		Example: `  portfolio portfolio history --from 2024-01-01 --to 2024-06-30`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			fromDay, err := parseOptionalDate("from", from)
			if err != nil {
				return err
			}
			toDay, err := parseOptionalDate("to", to)
			if err != nil {
				return err
			}
			if err := app.Validator.DateRange(fromDay, toDay); err != nil {
				return err
			}
			s, err := app.openStore()
			if err != nil {
				return err
			}

			points, err := portfolio.NewService(s, app.Logger).ValueHistory(ctx, fromDay, toDay)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(points)
			}
			if len(points) == 0 {
				output.Dim("No prices in range.")
				return nil
			}

			seen := make(map[string]bool)
			for _, p := range points {
				for cur := range p.Values {
					seen[cur] = true
				}
			}
			currencies := sortedKeys(seen)
			table := NewTable(output, append([]string{"DATE"}, currencies...)...)
			for _, p := range points {
				row := []string{FormatDate(p.Date)}
				for _, cur := range currencies {
					v, ok := p.Values[cur]
					if !ok {
						row = append(row, "-")
						continue
					}
					row = append(row, utils.FormatMoney(v, cur))
				}
				table.AddRow(row...)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day YYYY-MM-DD")
	return cmd
}
