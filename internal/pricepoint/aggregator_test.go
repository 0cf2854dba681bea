package pricepoint

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func line(id int64, code, supplier string, price string, qty string, at time.Time) domain.InvoiceLine {
	loc := "loc-1"
	return domain.InvoiceLine{
		ID:              snowflake.ID(id),
		ProductCode:     code,
		SupplierID:      supplier,
		SupplierName:    "Supplier " + supplier,
		UnitType:        "kg",
		Quantity:        dec(qty),
		UnitPrice:       dec(price),
		TransactionDate: at,
		DocumentType:    "Invoice",
		LocationID:      &loc,
	}
}

func TestAggregateGroupsBySeriesAndDate(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 17, 0, 0, 0, time.UTC)

	lines := []domain.InvoiceLine{
		line(1, "SKU-1", "sup-a", "10", "2", d1),
		line(2, "SKU-1", "sup-a", "15", "2", d1.Add(3*time.Hour)),
		line(3, "SKU-1", "sup-a", "11", "1", d2),
		line(4, "SKU-1", "sup-b", "9", "1", d1),
	}

	agg := NewAggregator(nil, zap.NewNop()).Aggregate(lines)
	require.Len(t, agg.Variation, 2)

	first := agg.Variation[0]
	assert.Equal(t, SeriesKey{Product: "SKU-1", Supplier: "sup-a", UnitType: "kg"}, first.Key)
	assert.Equal(t, "SKU-1|sup-a|kg", first.Key.String())
	assert.Equal(t, "Supplier sup-a", first.SupplierName)
	require.Len(t, first.Groups, 2)
	assert.Len(t, first.Groups[0].Points, 2)
	assert.True(t, first.Groups[0].Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, first.Groups[1].Points, 1)

	assert.Equal(t, "sup-b", agg.Variation[1].Key.Supplier)
}

func TestAggregateUsesDescriptionWhenCodeMissing(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := line(1, "", "sup-a", "10", "1", at)
	a.Description = "Carrots loose"
	b := line(2, "  ", "sup-a", "12", "1", at)
	b.Description = "Carrots loose"

	agg := NewAggregator(nil, nil).Aggregate([]domain.InvoiceLine{a, b})
	require.Len(t, agg.Variation, 1)
	assert.Equal(t, "Carrots loose", agg.Variation[0].Key.Product)
	assert.Len(t, agg.Variation[0].Points, 2)
}

func TestAggregateEffectivePriceFallback(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	discounted := line(1, "SKU-1", "sup-a", "10", "1", at)
	discounted.UnitPriceDiscounted = decPtr("8.5")
	zeroDiscount := line(2, "SKU-1", "sup-a", "10", "1", at)
	zeroDiscount.UnitPriceDiscounted = decPtr("0")

	agg := NewAggregator(nil, nil).Aggregate([]domain.InvoiceLine{discounted, zeroDiscount})
	points := agg.Variation[0].Points
	assert.True(t, points[0].Price.Equal(dec("8.5")))
	assert.True(t, points[1].Price.Equal(dec("10")))
}

func TestAggregateSplitsCreditNotes(t *testing.T) {
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	invoice := line(1, "SKU-1", "sup-a", "9", "3", at)
	credit := line(2, "SKU-1", "sup-a", "9", "-3", at)
	credit.DocumentType = "KREDITNOTA"
	english := line(3, "SKU-1", "sup-a", "-9", "3", at)
	english.DocumentType = "Credit note"

	agg := NewAggregator([]string{"credit", "kreditnota"}, nil).Aggregate([]domain.InvoiceLine{invoice, credit, english})

	require.Len(t, agg.Variation, 1)
	assert.Len(t, agg.Variation[0].Points, 1)

	require.Len(t, agg.Exposure, 1)
	exposure := agg.Exposure[0].Points
	require.Len(t, exposure, 3)
	for _, p := range exposure[1:] {
		assert.True(t, p.Credit)
		assert.True(t, p.Price.Equal(dec("-9")), "credit price %s", p.Price)
		assert.True(t, p.Quantity.Equal(dec("3")), "credit qty %s", p.Quantity)
	}
}

func TestAggregateSkipsMalformedRecords(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	noProduct := line(1, "", "sup-a", "10", "1", at)
	noSupplier := line(2, "SKU-1", "", "10", "1", at)
	ok := line(3, "SKU-1", "sup-a", "10", "1", at)

	agg := NewAggregator(nil, zap.New(core)).Aggregate([]domain.InvoiceLine{noProduct, noSupplier, ok})
	assert.Equal(t, 2, agg.Skipped)
	assert.Len(t, agg.Variation, 1)
	assert.Equal(t, 2, logs.FilterMessage("skipping invoice line without identity").Len())
}
