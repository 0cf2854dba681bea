package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceLine is one purchased line item as stored by the record source.
// The engine treats it as read-only.
type InvoiceLine struct {
	ID                   snowflake.ID     `json:"id" gorm:"primaryKey"`
	OrgID                snowflake.ID     `json:"organization_id" gorm:"column:org_id;not null;index:idx_invoice_lines_org_date"`
	BusinessUnitID       *string          `json:"business_unit_id,omitempty" gorm:"column:business_unit_id;type:text"`
	ProductCode          string           `json:"product_code" gorm:"column:product_code;type:text"`
	Description          string           `json:"description" gorm:"column:description;type:text"`
	SupplierID           string           `json:"supplier_id" gorm:"column:supplier_id;type:text;index"`
	SupplierName         string           `json:"supplier_name" gorm:"column:supplier_name;type:text"`
	UnitType             string           `json:"unit_type" gorm:"column:unit_type;type:text"`
	Category             string           `json:"category" gorm:"column:category;type:text"`
	Quantity             decimal.Decimal  `json:"quantity" gorm:"column:quantity;type:numeric(18,4);not null"`
	UnitPrice            decimal.Decimal  `json:"unit_price" gorm:"column:unit_price;type:numeric(18,4);not null"`
	UnitPriceDiscounted  *decimal.Decimal `json:"unit_price_discounted,omitempty" gorm:"column:unit_price_discounted;type:numeric(18,4)"`
	TotalPrice           decimal.Decimal  `json:"total_price" gorm:"column:total_price;type:numeric(18,4);not null"`
	TotalPriceDiscounted *decimal.Decimal `json:"total_price_discounted,omitempty" gorm:"column:total_price_discounted;type:numeric(18,4)"`
	TransactionDate      time.Time        `json:"transaction_date" gorm:"column:transaction_date;not null;index:idx_invoice_lines_org_date"`
	DocumentType         string           `json:"document_type" gorm:"column:document_type;type:text"`
	LocationID           *string          `json:"location_id,omitempty" gorm:"column:location_id;type:text"`
	CreatedAt            time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

// ProductIdentity is the product code when present, otherwise the free-text description.
// Alert keys derive from it, so the fallback must stay stable across runs.
func (l InvoiceLine) ProductIdentity() string {
	if code := strings.TrimSpace(l.ProductCode); code != "" {
		return code
	}
	return strings.TrimSpace(l.Description)
}

// EffectivePrice is the discounted unit price when present and non-zero, else the list price.
func (l InvoiceLine) EffectivePrice() decimal.Decimal {
	if l.UnitPriceDiscounted != nil && !l.UnitPriceDiscounted.IsZero() {
		return *l.UnitPriceDiscounted
	}
	return l.UnitPrice
}

type AgreementStatus string

const (
	AgreementStatusOngoing   AgreementStatus = "ongoing"
	AgreementStatusActive    AgreementStatus = "active"
	AgreementStatusCompleted AgreementStatus = "completed"
	AgreementStatusCancelled AgreementStatus = "cancelled"
)

// ActiveAgreementStatuses are the statuses the matcher checks against.
var ActiveAgreementStatuses = []AgreementStatus{AgreementStatusOngoing, AgreementStatusActive}

func (s AgreementStatus) IsActive() bool {
	switch AgreementStatus(strings.ToLower(strings.TrimSpace(string(s)))) {
	case AgreementStatusOngoing, AgreementStatusActive:
		return true
	default:
		return false
	}
}

// Agreement is a negotiated target price for a product, optionally bound to a supplier.
type Agreement struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null;index"`
	ProductID     string          `json:"product_id" gorm:"column:product_id;type:text;not null"`
	SupplierID    *string         `json:"supplier_id,omitempty" gorm:"column:supplier_id;type:text"`
	SupplierName  *string         `json:"supplier_name,omitempty" gorm:"column:supplier_name;type:text"`
	TargetPrice   decimal.Decimal `json:"target_price" gorm:"column:target_price;type:numeric(18,4);not null"`
	EffectiveDate *time.Time      `json:"effective_date,omitempty" gorm:"column:effective_date"`
	Status        AgreementStatus `json:"status" gorm:"column:status;type:text;not null"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Agreement) TableName() string { return "price_agreements" }
