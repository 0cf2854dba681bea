package pricepoint

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SeriesKey identifies a product from a supplier in a given unit.
type SeriesKey struct {
	Product  string `json:"product"`
	Supplier string `json:"supplier"`
	UnitType string `json:"unit_type"`
}

func (k SeriesKey) String() string {
	return k.Product + "|" + k.Supplier + "|" + k.UnitType
}

func (k SeriesKey) Less(other SeriesKey) bool {
	if k.Product != other.Product {
		return k.Product < other.Product
	}
	if k.Supplier != other.Supplier {
		return k.Supplier < other.Supplier
	}
	return k.UnitType < other.UnitType
}

// PricePoint is one price observation derived from an invoice line.
type PricePoint struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Date       time.Time
	LineID     snowflake.ID
	LocationID string
	Credit     bool
}

// DateGroup holds the points of one calendar day.
type DateGroup struct {
	Date   time.Time
	Points []PricePoint
}

// ProductSeries is built once per run and only read afterwards.
type ProductSeries struct {
	Key          SeriesKey
	SupplierName string
	Points       []PricePoint
	Groups       []DateGroup
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
