// Package portfolio computes derived, read-only views over stored holdings:
// dividend totals, positions and profit/loss. Amounts in different
// currencies are never converted or added together.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/models"
)

// DividendTotal aggregates the dividends of one asset in one currency.
type DividendTotal struct {
	AssetID  int64
	Currency string
	Gross    decimal.Decimal
	Tax      decimal.Decimal
	Net      decimal.Decimal
	Count    int
}

// Average returns the mean gross payment.
func (t DividendTotal) Average() decimal.Decimal {
	if t.Count == 0 {
		return decimal.Zero
	}
	return t.Gross.Div(decimal.NewFromInt(int64(t.Count)))
}

type totalKey struct {
	assetID  int64
	currency string
}

// DividendTotals groups dividends by asset and currency. Net is the sum of
// amounts minus the sum of withheld tax. The result is ordered by asset id,
// then currency.
func DividendTotals(dividends []models.Dividend) []DividendTotal {
	totals := make(map[totalKey]*DividendTotal)
	for _, d := range dividends {
		key := totalKey{d.AssetID, d.Currency}
		t, ok := totals[key]
		if !ok {
			t = &DividendTotal{AssetID: d.AssetID, Currency: d.Currency}
			totals[key] = t
		}
		t.Gross = t.Gross.Add(d.Amount)
		t.Tax = t.Tax.Add(d.TaxWithheld)
		t.Count++
	}

	result := make([]DividendTotal, 0, len(totals))
	for _, t := range totals {
		t.Net = t.Gross.Sub(t.Tax)
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AssetID != result[j].AssetID {
			return result[i].AssetID < result[j].AssetID
		}
		return result[i].Currency < result[j].Currency
	})
	return result
}

// DividendsByCurrency sums dividend totals across assets, keyed by currency.
// AssetID is zero in the returned totals.
func DividendsByCurrency(totals []DividendTotal) map[string]DividendTotal {
	out := make(map[string]DividendTotal)
	for _, t := range totals {
		c := out[t.Currency]
		c.Currency = t.Currency
		c.Gross = c.Gross.Add(t.Gross)
		c.Tax = c.Tax.Add(t.Tax)
		c.Net = c.Net.Add(t.Net)
		c.Count += t.Count
		out[t.Currency] = c
	}
	return out
}
