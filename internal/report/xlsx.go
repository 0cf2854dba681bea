package report

import (
	"io"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pricewatch/internal/detection/domain"
	resolutiondomain "github.com/smallbiznis/pricewatch/internal/resolution/domain"
	"github.com/xuri/excelize/v2"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	SheetVariations = "Variations"
	SheetAgreements = "Agreement Violations"
	SheetTotals     = "Totals"

	dateFormat = "2006-01-02"
)

var (
	variationHeader = []any{
		"Alert Key", "Product", "Supplier ID", "Supplier", "Unit", "Mode", "Date", "Previous Date",
		"Previous Price", "Current Price", "Difference", "Variation %", "Overpaid", "Resolution",
	}
	agreementHeader = []any{
		"Alert Key", "Product", "Supplier ID", "Supplier", "Unit", "Agreement Price", "Effective Date",
		"Date", "Location", "Quantity", "Actual Price", "Overspend", "Reversal", "Credit", "Resolution",
	}
)

// WriteXLSX renders a report as a workbook with one sheet per alert class
// and a totals sheet. Agreement violations are expanded to one row per instance.
func WriteXLSX(w io.Writer, r domain.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetVariations); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetAgreements); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetTotals); err != nil {
		return err
	}

	if err := writeRow(f, SheetVariations, 1, variationHeader); err != nil {
		return err
	}
	for i, a := range r.Variations {
		previous := ""
		if a.PreviousDate != nil {
			previous = a.PreviousDate.Format(dateFormat)
		}
		row := []any{
			a.AlertKey, a.Product, a.SupplierID, a.SupplierName, a.UnitType, a.Mode,
			a.Date.Format(dateFormat), previous,
			num(a.PreviousPrice), num(a.CurrentPrice), num(a.PriceDifference),
			num(a.VariationPercentage), num(a.OverpaidAmount), resolutionLabel(a.Resolution),
		}
		if err := writeRow(f, SheetVariations, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, SheetAgreements, 1, agreementHeader); err != nil {
		return err
	}
	rowNo := 2
	for _, a := range r.Agreements {
		effective := ""
		if a.EffectiveDate != nil {
			effective = a.EffectiveDate.Format(dateFormat)
		}
		for _, inst := range a.Instances {
			row := []any{
				a.AlertKey, a.Key.Product, a.Key.Supplier, a.SupplierName, a.Key.UnitType,
				num(a.AgreementPrice), effective,
				inst.Date.Format(dateFormat), inst.LocationID, num(inst.Quantity), num(inst.ActualPrice),
				num(inst.OverspendAmount), num(inst.ReversalAmount), inst.Credit,
				resolutionLabel(a.Resolution),
			}
			if err := writeRow(f, SheetAgreements, rowNo, row); err != nil {
				return err
			}
			rowNo++
		}
	}

	totals := [][]any{
		{"Metric", "Amount"},
		{"Variations", num(r.Totals.Variations)},
		{"Agreements", num(r.Totals.Agreements)},
		{"Total", num(r.Totals.Total)},
	}
	for i, row := range totals {
		if err := writeRow(f, SheetTotals, i+1, row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func num(v decimal.Decimal) float64 {
	return v.InexactFloat64()
}

func resolutionLabel(r *resolutiondomain.Resolution) string {
	if r == nil {
		return "open"
	}
	return "resolved: " + string(r.Reason)
}
