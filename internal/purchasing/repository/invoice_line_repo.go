package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/smallbiznis/pricewatch/internal/purchasing/domain"
	"github.com/smallbiznis/pricewatch/pkg/db/pagination"
	"gorm.io/gorm"
)

type invoiceLineRepo struct {
	db *gorm.DB
}

func NewInvoiceLineRepository(db *gorm.DB) domain.RecordSource {
	return &invoiceLineRepo{db: db}
}

func (r *invoiceLineRepo) FetchPage(ctx context.Context, filter domain.Filter, pageSize int, after string) (domain.Page, error) {
	if pageSize <= 0 {
		return domain.Page{}, domain.ErrInvalidPageSize
	}
	if err := filter.Validate(); err != nil {
		return domain.Page{}, err
	}

	stmt := applyFilter(r.db.WithContext(ctx).Model(&domain.InvoiceLine{}), filter.Normalize())
	if after != "" {
		cursor, err := pagination.DecodeCursor(after)
		if err != nil {
			return domain.Page{}, err
		}
		lastID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return domain.Page{}, pagination.ErrInvalidCursor
		}
		stmt = stmt.Where(
			"(transaction_date > ? OR (transaction_date = ? AND id > ?))",
			cursor.Date, cursor.Date, lastID,
		)
	}

	var rows []domain.InvoiceLine
	err := stmt.
		Order("transaction_date ASC").
		Order("id ASC").
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return domain.Page{}, err
	}

	page := domain.Page{Records: rows}
	if len(rows) == pageSize {
		last := rows[len(rows)-1]
		next, err := pagination.EncodeCursor(pagination.Cursor{
			ID:   last.ID.String(),
			Date: last.TransactionDate,
		})
		if err != nil {
			return domain.Page{}, err
		}
		page.Next = next
	}
	return page, nil
}

func applyFilter(stmt *gorm.DB, f domain.Filter) *gorm.DB {
	stmt = stmt.Where("org_id = ?", f.OrgID)
	if f.BusinessUnitID != "" {
		stmt = stmt.Where("business_unit_id = ?", f.BusinessUnitID)
	}
	if !f.DateFrom.IsZero() {
		stmt = stmt.Where("transaction_date >= ?", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		stmt = stmt.Where("transaction_date < ?", f.DateTo.AddDate(0, 0, 1))
	}
	if len(f.LocationIDs) > 0 {
		stmt = stmt.Where("location_id IN ?", f.LocationIDs)
	} else {
		// Unscoped queries only cover mapped locations so totals match per-location views.
		stmt = stmt.Where("location_id IS NOT NULL")
	}
	if len(f.SupplierIDs) > 0 {
		stmt = stmt.Where("supplier_id IN ?", f.SupplierIDs)
	}
	if len(f.Categories) > 0 {
		stmt = stmt.Where("LOWER(category) IN ?", f.Categories)
	}
	if f.DocumentType != "" {
		stmt = stmt.Where("LOWER(document_type) = ?", f.DocumentType)
	}
	for _, term := range f.SearchTerms() {
		like := "%" + escapeLike(term) + "%"
		stmt = stmt.Where(
			"(LOWER(description) LIKE ? ESCAPE '!' OR LOWER(product_code) LIKE ? ESCAPE '!' OR LOWER(supplier_name) LIKE ? ESCAPE '!')",
			like, like, like,
		)
	}
	switch f.ProductCodeMode {
	case domain.ProductCodeWith:
		stmt = stmt.Where("product_code IS NOT NULL AND TRIM(product_code) <> ''")
	case domain.ProductCodeWithout:
		stmt = stmt.Where("(product_code IS NULL OR TRIM(product_code) = '')")
	}
	return stmt
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return replacer.Replace(term)
}
