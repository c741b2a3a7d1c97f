package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

var hundred = decimal.NewFromInt(100)

// PnL is a profit/loss figure in the asset's currency.
type PnL struct {
	Amount  decimal.Decimal
	Percent decimal.Decimal
}

// ProfitLoss returns (price - averageCost) * quantity. Percent is the move
// relative to the average cost and is zero when the cost is zero.
func ProfitLoss(currentPrice, averageCost, quantity decimal.Decimal) PnL {
	diff := currentPrice.Sub(averageCost)
	pnl := PnL{Amount: diff.Mul(quantity)}
	if !averageCost.IsZero() {
		pnl.Percent = diff.Div(averageCost).Mul(hundred)
	}
	return pnl
}

// Position is the holding of one asset derived from its transactions using
// the average cost method.
type Position struct {
	AssetID     int64
	Currency    string
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	Realized    decimal.Decimal
}

// CostBasis returns quantity times average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}

// Apply adds one transaction to the position. A sell leaves the average cost
// unchanged and books the realised gain; selling more than is held fails with
// ErrInsufficientQuantity.
func (p Position) Apply(tx models.Transaction) (Position, error) {
	if p.Currency == "" {
		p.Currency = tx.Currency
	}
	switch tx.Type {
	case models.TransactionBuy:
		total := p.CostBasis().Add(tx.Quantity.Mul(tx.Price))
		p.Quantity = p.Quantity.Add(tx.Quantity)
		p.AverageCost = total.Div(p.Quantity)

	case models.TransactionSell:
		if tx.Quantity.GreaterThan(p.Quantity) {
			return p, fmt.Errorf("sell %s of asset %d with %s held: %w",
				tx.Quantity, tx.AssetID, p.Quantity, apperrors.ErrInsufficientQuantity)
		}
		p.Realized = p.Realized.Add(tx.Price.Sub(p.AverageCost).Mul(tx.Quantity))
		p.Quantity = p.Quantity.Sub(tx.Quantity)
		if p.Quantity.IsZero() {
			p.AverageCost = decimal.Zero
		}

	default:
		return p, apperrors.NewValidationError("transaction_type", string(tx.Type), "must be buy or sell")
	}
	return p, nil
}

// Positions replays transactions in the given order and returns one position
// per asset.
func Positions(txs []models.Transaction) (map[int64]Position, error) {
	positions := make(map[int64]Position)
	for _, tx := range txs {
		p := positions[tx.AssetID]
		p.AssetID = tx.AssetID
		next, err := p.Apply(tx)
		if err != nil {
			return nil, err
		}
		positions[tx.AssetID] = next
	}
	return positions, nil
}
