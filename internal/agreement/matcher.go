package agreement

import (
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/pricepoint"
	"github.com/smallbiznis/pricewatch/internal/purchasing/domain"
)

// Instance is one transaction priced against an agreement.
// Credit instances carry a ReversalAmount and never an OverspendAmount.
type Instance struct {
	Date            time.Time       `json:"date"`
	LocationID      string          `json:"location_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	ActualPrice     decimal.Decimal `json:"actual_price"`
	OverspendAmount decimal.Decimal `json:"overspend_amount"`
	ReversalAmount  decimal.Decimal `json:"reversal_amount"`
	LineID          snowflake.ID    `json:"line_id"`
	Credit          bool            `json:"credit"`
}

// Violation aggregates the overspend of one series against its governing agreement.
type Violation struct {
	Key            pricepoint.SeriesKey `json:"key"`
	SupplierName   string               `json:"supplier_name"`
	AgreementID    snowflake.ID         `json:"agreement_id"`
	AgreementPrice decimal.Decimal      `json:"agreement_price"`
	EffectiveDate  *time.Time           `json:"effective_date,omitempty"`
	Instances      []Instance           `json:"instances"`
	TotalOverspend decimal.Decimal      `json:"total_overspend"`
}

// Match cross-references exposure series (credit notes included, sign-inverted)
// against active agreements. Series without overspending transactions yield nothing.
func Match(agreements []domain.Agreement, exposure []pricepoint.ProductSeries) []Violation {
	active := make([]domain.Agreement, 0, len(agreements))
	for _, a := range agreements {
		if a.Status.IsActive() && strings.TrimSpace(a.ProductID) != "" {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil
	}

	violations := make([]Violation, 0)
	for _, series := range exposure {
		governing, ok := selectAgreement(active, series)
		if !ok {
			continue
		}
		if v, ok := evaluate(governing, series); ok {
			violations = append(violations, v)
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Key.Less(violations[j].Key)
	})
	return violations
}

// selectAgreement prefers agreements bound by supplier id; name-bound agreements are
// only considered when no id-bound one matches. Among those, the latest effective
// date governs, then the lower target price, then the lower id.
func selectAgreement(agreements []domain.Agreement, series pricepoint.ProductSeries) (domain.Agreement, bool) {
	var byID, byName []domain.Agreement
	for _, a := range agreements {
		if strings.TrimSpace(a.ProductID) != series.Key.Product {
			continue
		}
		if id := trimmed(a.SupplierID); id != "" {
			if id == series.Key.Supplier {
				byID = append(byID, a)
			}
			continue
		}
		if name := trimmed(a.SupplierName); name != "" && strings.EqualFold(name, series.SupplierName) {
			byName = append(byName, a)
		}
	}

	candidates := byID
	if len(candidates) == 0 {
		candidates = byName
	}
	if len(candidates) == 0 {
		return domain.Agreement{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ei, ej := effectiveDay(candidates[i]), effectiveDay(candidates[j])
		if !ei.Equal(ej) {
			return ei.After(ej)
		}
		if !candidates[i].TargetPrice.Equal(candidates[j].TargetPrice) {
			return candidates[i].TargetPrice.LessThan(candidates[j].TargetPrice)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}

func evaluate(a domain.Agreement, series pricepoint.ProductSeries) (Violation, bool) {
	effective := effectiveDay(a)
	target := a.TargetPrice

	var (
		instances     []Instance
		overspend     = decimal.Zero
		reversal      = decimal.Zero
		overspendSeen bool
	)

	for _, p := range series.Points {
		if pricepoint.Day(p.Date).Before(effective) {
			continue
		}

		inst := Instance{
			Date:            p.Date,
			LocationID:      p.LocationID,
			Quantity:        p.Quantity,
			ActualPrice:     p.Price,
			OverspendAmount: nonNegative(p.Price.Sub(target).Mul(p.Quantity)),
			ReversalAmount:  decimal.Zero,
			LineID:          p.LineID,
			Credit:          p.Credit,
		}

		if p.Credit {
			inst.ReversalAmount = nonNegative(p.Price.Abs().Sub(target).Mul(p.Quantity.Abs()))
			if !inst.ReversalAmount.IsPositive() {
				continue
			}
			reversal = reversal.Add(inst.ReversalAmount)
			instances = append(instances, inst)
			continue
		}

		if !inst.OverspendAmount.IsPositive() {
			continue
		}
		overspendSeen = true
		overspend = overspend.Add(inst.OverspendAmount)
		instances = append(instances, inst)
	}

	if !overspendSeen {
		return Violation{}, false
	}

	v := Violation{
		Key:            series.Key,
		SupplierName:   series.SupplierName,
		AgreementID:    a.ID,
		AgreementPrice: target,
		Instances:      instances,
		TotalOverspend: nonNegative(overspend.Sub(reversal)),
	}
	if a.EffectiveDate != nil {
		d := pricepoint.Day(*a.EffectiveDate)
		v.EffectiveDate = &d
	}
	return v, true
}

func effectiveDay(a domain.Agreement) time.Time {
	if a.EffectiveDate == nil {
		return time.Time{}
	}
	return pricepoint.Day(*a.EffectiveDate)
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
