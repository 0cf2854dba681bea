package variation

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/pricepoint"
)

// Percentage compares the latest price with the nearest price from an earlier day.
type Percentage struct {
	MinPercentage decimal.Decimal
}

func (Percentage) Mode() string { return ModePercentage }

func (d Percentage) Detect(series pricepoint.ProductSeries) Result {
	if len(series.Points) < 2 {
		return Result{}
	}

	// Newest first; within a day, later lines first.
	points := make([]pricepoint.PricePoint, len(series.Points))
	for i, p := range series.Points {
		points[len(points)-1-i] = p
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.After(points[j].Date)
	})

	current := points[0]
	var previous *pricepoint.PricePoint
	for i := 1; i < len(points); i++ {
		if !pricepoint.SameDay(points[i].Date, current.Date) {
			previous = &points[i]
			break
		}
	}
	if previous == nil || !previous.Price.IsPositive() {
		return Result{}
	}

	diff := current.Price.Sub(previous.Price)
	pct := percentageOf(diff, previous.Price)
	prevDate := previous.Date
	result := Result{
		VariationPercentage: pct.Round(2),
		PreviousPrice:       previous.Price,
		CurrentPrice:        current.Price,
		PriceDifference:     diff,
		OverpaidAmount:      decimal.Zero,
		Date:                current.Date,
		PreviousDate:        &prevDate,
	}
	if diff.IsZero() || pct.LessThan(d.MinPercentage) {
		return result
	}

	result.HasVariation = true
	// Decreases are savings; they never show up as overpaid.
	result.OverpaidAmount = clampZero(diff.Mul(current.Quantity))
	return result
}
