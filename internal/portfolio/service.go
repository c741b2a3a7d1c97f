package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
)

// Store is the subset of the data store the service reads.
type Store interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	GetDividends(ctx context.Context, filter store.DividendFilter) ([]models.Dividend, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	GetTransactions(ctx context.Context, assetID int64) ([]models.Transaction, error)
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	GetPriceHistory(ctx context.Context, to time.Time) ([]models.Price, error)
}

// Service computes portfolio views from stored rows.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates a portfolio service.
func NewService(s Store, logger zerolog.Logger) *Service {
	return &Service{store: s, logger: logger.With().Str("component", "portfolio").Logger()}
}

// AssetDividendTotals returns the per-currency dividend totals of one asset,
// restricted to [from, to] when either bound is set.
func (s *Service) AssetDividendTotals(ctx context.Context, assetID int64, from, to time.Time) ([]DividendTotal, error) {
	dividends, err := s.store.GetDividends(ctx, store.DividendFilter{AssetID: assetID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return DividendTotals(dividends), nil
}

// RecordTransaction validates tx against the current position and stores it.
func (s *Service) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	existing, err := s.store.GetTransactions(ctx, tx.AssetID)
	if err != nil {
		return err
	}
	positions, err := Positions(existing)
	if err != nil {
		return err
	}
	if _, err := positions[tx.AssetID].Apply(*tx); err != nil {
		return err
	}
	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return err
	}
	s.logger.Info().
		Int64("asset_id", tx.AssetID).
		Str("type", string(tx.Type)).
		Str("quantity", tx.Quantity.String()).
		Str("price", tx.Price.String()).
		Msg("Transaction recorded")
	return nil
}

// DeleteTransaction removes a transaction unless the remaining history of
// the asset would sell more than it bought.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	target, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.GetTransactions(ctx, target.AssetID)
	if err != nil {
		return nil, err
	}
	rest := make([]models.Transaction, 0, len(history))
	for _, tx := range history {
		if tx.ID != id {
			rest = append(rest, tx)
		}
	}
	if _, err := Positions(rest); err != nil {
		return nil, apperrors.Wrapf(err, "cannot delete transaction %d", id)
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("transaction_id", id).Int64("asset_id", target.AssetID).Msg("Transaction deleted")
	return target, nil
}

// Holding is one row of the portfolio summary.
type Holding struct {
	Asset       models.Asset
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	HasCost     bool
	Price       decimal.Decimal
	HasPrice    bool
	Value       decimal.Decimal
	PnL         PnL
	Realized    decimal.Decimal
}

// Rollup sums holdings that share a currency.
type Rollup struct {
	Currency  string
	Value     decimal.Decimal
	Cost      decimal.Decimal
	PnL       decimal.Decimal
	Realized  decimal.Decimal
	Dividends decimal.Decimal
}

// Percent returns unrealised P/L relative to cost, or zero without cost.
func (r Rollup) Percent() decimal.Decimal {
	if r.Cost.IsZero() {
		return decimal.Zero
	}
	return r.PnL.Div(r.Cost).Mul(hundred)
}

// Summary is the portfolio view at one price snapshot.
type Summary struct {
	Holdings []Holding
	Rollup   map[string]*Rollup
}

// Currencies returns the rollup currencies in sorted order.
func (s Summary) Currencies() []string {
	out := make([]string, 0, len(s.Rollup))
	for c := range s.Rollup {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Summary builds per-asset rows and a per-currency rollup. Quantity and
// average cost come from the asset's transactions when it has any, otherwise
// from the quantity stored on the asset with no known cost.
func (s *Service) Summary(ctx context.Context, quotes map[int64]models.Quote) (*Summary, error) {
	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.GetTransactions(ctx, 0)
	if err != nil {
		return nil, err
	}
	positions, err := Positions(txs)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to replay transactions")
	}
	dividends, err := s.store.GetDividends(ctx, store.DividendFilter{})
	if err != nil {
		return nil, err
	}

	summary := &Summary{Rollup: make(map[string]*Rollup)}
	for _, a := range assets {
		h := Holding{Asset: a, Quantity: a.Quantity}
		if p, ok := positions[a.ID]; ok {
			h.Quantity = p.Quantity
			h.AverageCost = p.AverageCost
			h.HasCost = true
			h.Realized = p.Realized
		}
		if q, ok := quotes[a.ID]; ok {
			h.Price = q.Price
			h.HasPrice = true
			h.Value = q.Price.Mul(h.Quantity)
			if h.HasCost {
				h.PnL = ProfitLoss(q.Price, h.AverageCost, h.Quantity)
			}
		}
		summary.Holdings = append(summary.Holdings, h)

		r := summary.rollup(a.Currency)
		r.Value = r.Value.Add(h.Value)
		r.Realized = r.Realized.Add(h.Realized)
		if h.HasCost && h.HasPrice {
			r.Cost = r.Cost.Add(h.AverageCost.Mul(h.Quantity))
			r.PnL = r.PnL.Add(h.PnL.Amount)
		}
	}

	// Dividends roll up in the currency they were paid in.
	for currency, total := range DividendsByCurrency(DividendTotals(dividends)) {
		summary.rollup(currency).Dividends = total.Net
	}
	return summary, nil
}

func (s *Summary) rollup(currency string) *Rollup {
	r, ok := s.Rollup[currency]
	if !ok {
		r = &Rollup{Currency: currency}
		s.Rollup[currency] = r
	}
	return r
}

// ValuePoint is the portfolio value on one day, per currency.
type ValuePoint struct {
	Date   time.Time
	Values map[string]decimal.Decimal
}

// ValueHistory returns the portfolio value on every day in [from, to] that
// has at least one stored close. Each asset is valued at its latest close on
// or before the day, with the quantity held at the end of that day. Assets
// without transactions use their stored quantity. Zero bounds are open.
func (s *Service) ValueHistory(ctx context.Context, from, to time.Time) ([]ValuePoint, error) {
	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.GetTransactions(ctx, 0)
	if err != nil {
		return nil, err
	}
	prices, err := s.store.GetPriceHistory(ctx, to)
	if err != nil {
		return nil, err
	}

	traded := make(map[int64]bool)
	for _, tx := range txs {
		traded[tx.AssetID] = true
	}

	var points []ValuePoint
	positions := make(map[int64]Position)
	latest := make(map[int64]decimal.Decimal)
	ti := 0
	for pi := 0; pi < len(prices); {
		day := prices[pi].Date
		for ; pi < len(prices) && prices[pi].Date.Equal(day); pi++ {
			latest[prices[pi].AssetID] = prices[pi].Close
		}
		for ; ti < len(txs) && !txs[ti].Date.After(day); ti++ {
			tx := txs[ti]
			next, err := positions[tx.AssetID].Apply(tx)
			if err != nil {
				return nil, apperrors.Wrap(err, "failed to replay transactions")
			}
			positions[tx.AssetID] = next
		}
		if !from.IsZero() && day.Before(from) {
			continue
		}

		point := ValuePoint{Date: day, Values: make(map[string]decimal.Decimal)}
		for _, a := range assets {
			closePrice, ok := latest[a.ID]
			if !ok {
				continue
			}
			qty := a.Quantity
			if traded[a.ID] {
				qty = positions[a.ID].Quantity
			}
			point.Values[a.Currency] = point.Values[a.Currency].Add(closePrice.Mul(qty))
		}
		points = append(points, point)
	}
	return points, nil
}
