package variation

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/pricepoint"
)

const (
	ModeFixed      = "fixed"
	ModePercentage = "percentage"
)

var (
	ErrUnknownMode       = errors.New("unknown_variation_mode")
	ErrNegativeThreshold = errors.New("negative_variation_threshold")
)

var hundred = decimal.NewFromInt(100)

// Result is the verdict for one series. OverpaidAmount is never negative.
type Result struct {
	HasVariation        bool            `json:"has_variation"`
	VariationPercentage decimal.Decimal `json:"variation_percentage"`
	PreviousPrice       decimal.Decimal `json:"previous_price"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	PriceDifference     decimal.Decimal `json:"price_difference"`
	OverpaidAmount      decimal.Decimal `json:"overpaid_amount"`
	Date                time.Time       `json:"date"`
	PreviousDate        *time.Time      `json:"previous_date,omitempty"`
}

// Detector scans one series and reports at most one variation.
type Detector interface {
	Mode() string
	Detect(series pricepoint.ProductSeries) Result
}

// New selects a strategy by mode name.
func New(mode string, minDifference, minPercentage decimal.Decimal) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeFixed, "":
		if minDifference.IsNegative() {
			return nil, ErrNegativeThreshold
		}
		return FixedAmount{MinDifference: minDifference}, nil
	case ModePercentage:
		if minPercentage.IsNegative() {
			return nil, ErrNegativeThreshold
		}
		return Percentage{MinPercentage: minPercentage}, nil
	default:
		return nil, ErrUnknownMode
	}
}

// percentageOf is unrounded; round only for display.
func percentageOf(diff, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return diff.Abs().Div(base).Mul(hundred)
}

func clampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
