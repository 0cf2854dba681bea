package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/agreement"
	resolutiondomain "github.com/smallbiznis/pricewatch/internal/resolution/domain"
	"github.com/smallbiznis/pricewatch/internal/variation"
)

// VariationAlert is a flagged price variation for one series.
type VariationAlert struct {
	AlertKey     string `json:"alert_key"`
	Product      string `json:"product"`
	SupplierID   string `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	UnitType     string `json:"unit_type"`
	Mode         string `json:"mode"`
	variation.Result

	Resolution *resolutiondomain.Resolution `json:"resolution,omitempty"`
}

func (a VariationAlert) Impact() decimal.Decimal { return a.OverpaidAmount }

// AgreementAlert is an agreement violation for one series.
type AgreementAlert struct {
	AlertKey string `json:"alert_key"`
	agreement.Violation

	Resolution *resolutiondomain.Resolution `json:"resolution,omitempty"`
}

func (a AgreementAlert) Impact() decimal.Decimal { return a.TotalOverspend }

type Totals struct {
	Variations decimal.Decimal `json:"variations"`
	Agreements decimal.Decimal `json:"agreements"`
	Total      decimal.Decimal `json:"total"`
}

// Report is the output of one detection run. Alert lists are ordered by impact descending.
type Report struct {
	Fingerprint string           `json:"fingerprint"`
	Mode        string           `json:"mode"`
	GeneratedAt time.Time        `json:"generated_at"`
	Ingested    int              `json:"ingested"`
	Skipped     int              `json:"skipped"`
	Variations  []VariationAlert `json:"variations"`
	Agreements  []AgreementAlert `json:"agreements"`
	Totals      Totals           `json:"totals"`
	Cached      bool             `json:"cached"`
}

type RunOptions struct {
	IncludeResolved bool
	// Refresh bypasses the cache lookup; the fresh result is still written back.
	Refresh bool
}
