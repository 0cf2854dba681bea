package variation

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/pricepoint"
)

// FixedAmount flags same-day price spreads of at least MinDifference.
type FixedAmount struct {
	MinDifference decimal.Decimal
}

func (FixedAmount) Mode() string { return ModeFixed }

func (d FixedAmount) Detect(series pricepoint.ProductSeries) Result {
	var (
		best  Result
		found bool
	)

	for _, group := range series.Groups {
		if len(group.Points) < 2 {
			continue
		}

		base, top := group.Points[0].Price, group.Points[0].Price
		for _, p := range group.Points[1:] {
			if p.Price.LessThan(base) {
				base = p.Price
			}
			if p.Price.GreaterThan(top) {
				top = p.Price
			}
		}

		diff := top.Sub(base)
		if !diff.IsPositive() || diff.LessThan(d.MinDifference) {
			continue
		}
		// Earliest day wins ties.
		if found && !diff.GreaterThan(best.PriceDifference) {
			continue
		}

		overpaid := decimal.Zero
		for _, p := range group.Points {
			overpaid = overpaid.Add(clampZero(p.Price.Sub(base).Mul(p.Quantity)))
		}

		best = Result{
			HasVariation:        true,
			VariationPercentage: percentageOf(diff, base).Round(2),
			PreviousPrice:       base,
			CurrentPrice:        top,
			PriceDifference:     diff,
			OverpaidAmount:      overpaid,
			Date:                group.Date,
		}
		found = true
	}

	return best
}
