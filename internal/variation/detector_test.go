package variation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/pricepoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func pt(price, qty string, d int) pricepoint.PricePoint {
	return pricepoint.PricePoint{Price: dec(price), Quantity: dec(qty), Date: day(d)}
}

// series builds a ProductSeries the way the aggregator does.
func series(points ...pricepoint.PricePoint) pricepoint.ProductSeries {
	s := pricepoint.ProductSeries{
		Key:    pricepoint.SeriesKey{Product: "SKU-1", Supplier: "sup-a", UnitType: "kg"},
		Points: points,
	}
	for _, p := range points {
		if n := len(s.Groups); n > 0 && s.Groups[n-1].Date.Equal(p.Date) {
			s.Groups[n-1].Points = append(s.Groups[n-1].Points, p)
			continue
		}
		s.Groups = append(s.Groups, pricepoint.DateGroup{Date: p.Date, Points: []pricepoint.PricePoint{p}})
	}
	return s
}

func TestFixedAmountSameDaySpread(t *testing.T) {
	d := FixedAmount{MinDifference: dec("5")}
	res := d.Detect(series(pt("10", "2", 1), pt("10", "2", 1), pt("15", "2", 1)))

	require.True(t, res.HasVariation)
	assert.True(t, res.OverpaidAmount.Equal(dec("10")), "overpaid %s", res.OverpaidAmount)
	assert.True(t, res.PreviousPrice.Equal(dec("10")))
	assert.True(t, res.CurrentPrice.Equal(dec("15")))
	assert.True(t, res.PriceDifference.Equal(dec("5")))
	assert.True(t, res.VariationPercentage.Equal(dec("50")))
	assert.True(t, res.Date.Equal(day(1)))
}

func TestFixedAmountBelowThreshold(t *testing.T) {
	d := FixedAmount{MinDifference: dec("5")}
	res := d.Detect(series(pt("10", "2", 1), pt("14.99", "2", 1)))
	assert.False(t, res.HasVariation)
	assert.True(t, res.OverpaidAmount.IsZero())
}

func TestFixedAmountIgnoresCrossDaySpread(t *testing.T) {
	d := FixedAmount{MinDifference: dec("1")}
	res := d.Detect(series(pt("10", "1", 1), pt("20", "1", 2)))
	assert.False(t, res.HasVariation)
}

func TestFixedAmountReportsLargestDay(t *testing.T) {
	d := FixedAmount{MinDifference: dec("1")}
	res := d.Detect(series(
		pt("10", "1", 1), pt("12", "1", 1),
		pt("10", "1", 2), pt("16", "3", 2),
		pt("10", "1", 3), pt("16", "1", 3),
	))
	require.True(t, res.HasVariation)
	assert.True(t, res.Date.Equal(day(2)))
	assert.True(t, res.OverpaidAmount.Equal(dec("18")))
}

func TestFixedAmountEqualPricesNeverFlag(t *testing.T) {
	d := FixedAmount{MinDifference: decimal.Zero}
	res := d.Detect(series(pt("10", "1", 1), pt("10", "1", 1)))
	assert.False(t, res.HasVariation)
}

func TestFixedAmountBaseInvariantWithTies(t *testing.T) {
	d := FixedAmount{MinDifference: dec("1")}
	a := d.Detect(series(pt("10", "1", 1), pt("13", "2", 1), pt("10", "4", 1)))
	b := d.Detect(series(pt("13", "2", 1), pt("10", "4", 1), pt("10", "1", 1)))
	assert.True(t, a.OverpaidAmount.Equal(b.OverpaidAmount))
	assert.True(t, a.OverpaidAmount.Equal(dec("6")))
}

func TestPercentageBelowThreshold(t *testing.T) {
	d := Percentage{MinPercentage: dec("10")}
	res := d.Detect(series(pt("10", "1", 1), pt("10.5", "1", 2)))
	assert.False(t, res.HasVariation)
	assert.True(t, res.VariationPercentage.Equal(dec("5")))
	assert.True(t, res.OverpaidAmount.IsZero())
}

func TestPercentageIncrease(t *testing.T) {
	d := Percentage{MinPercentage: dec("10")}
	res := d.Detect(series(pt("10", "1", 1), pt("12", "4", 3)))
	require.True(t, res.HasVariation)
	assert.True(t, res.VariationPercentage.Equal(dec("20")))
	assert.True(t, res.OverpaidAmount.Equal(dec("8")))
	require.NotNil(t, res.PreviousDate)
	assert.True(t, res.PreviousDate.Equal(day(1)))
}

func TestPercentageThresholdUsesUnroundedChange(t *testing.T) {
	d := Percentage{MinPercentage: dec("10")}

	res := d.Detect(series(pt("100", "1", 1), pt("109.996", "1", 2)))
	assert.False(t, res.HasVariation)
	assert.True(t, res.VariationPercentage.Equal(dec("10")), "reported %s", res.VariationPercentage)
	assert.True(t, res.OverpaidAmount.IsZero())

	res = d.Detect(series(pt("100", "1", 1), pt("110", "1", 2)))
	require.True(t, res.HasVariation)
	assert.True(t, res.OverpaidAmount.Equal(dec("10")))
}

func TestPercentageDecreaseIsNotOverpaid(t *testing.T) {
	d := Percentage{MinPercentage: dec("10")}
	res := d.Detect(series(pt("20", "1", 1), pt("10", "5", 2)))
	require.True(t, res.HasVariation)
	assert.True(t, res.PriceDifference.Equal(dec("-10")))
	assert.True(t, res.OverpaidAmount.IsZero())
}

func TestPercentageSkipsSameDayDuplicates(t *testing.T) {
	d := Percentage{MinPercentage: dec("10")}
	// Latest line on day 3 is 12; the 11 on the same day is skipped; previous is day 2 at 10.
	res := d.Detect(series(pt("8", "1", 1), pt("10", "1", 2), pt("11", "1", 3), pt("12", "2", 3)))
	require.True(t, res.HasVariation)
	assert.True(t, res.CurrentPrice.Equal(dec("12")))
	assert.True(t, res.PreviousPrice.Equal(dec("10")))
	assert.True(t, res.OverpaidAmount.Equal(dec("4")))
}

func TestPercentageSingleDayHasNothingToCompare(t *testing.T) {
	d := Percentage{MinPercentage: dec("1")}
	assert.False(t, d.Detect(series(pt("10", "1", 1), pt("50", "1", 1))).HasVariation)
	assert.False(t, d.Detect(series(pt("10", "1", 1))).HasVariation)
	assert.False(t, d.Detect(series()).HasVariation)
}

func TestNewSelectsStrategy(t *testing.T) {
	det, err := New("fixed", dec("1"), dec("10"))
	require.NoError(t, err)
	assert.Equal(t, ModeFixed, det.Mode())

	det, err = New(" Percentage ", dec("1"), dec("10"))
	require.NoError(t, err)
	assert.Equal(t, ModePercentage, det.Mode())

	_, err = New("median", dec("1"), dec("10"))
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = New("fixed", dec("-1"), dec("10"))
	assert.ErrorIs(t, err, ErrNegativeThreshold)
}

func TestResultsAreNeverNegative(t *testing.T) {
	detectors := []Detector{
		FixedAmount{MinDifference: dec("0.01")},
		Percentage{MinPercentage: dec("0.01")},
	}
	inputs := []pricepoint.ProductSeries{
		series(pt("10", "-3", 1), pt("12", "-1", 1)),
		series(pt("30", "1", 1), pt("5", "9", 2)),
		series(pt("5", "1", 1), pt("30", "0", 2), pt("1", "2", 2)),
	}
	for _, det := range detectors {
		for _, in := range inputs {
			assert.False(t, det.Detect(in).OverpaidAmount.IsNegative(), det.Mode())
		}
	}
}
