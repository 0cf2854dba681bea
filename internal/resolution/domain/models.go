package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type AlertKind string

const (
	AlertKindVariation AlertKind = "variation"
	AlertKindAgreement AlertKind = "agreement"
)

type Reason string

const (
	ReasonPriceCorrected Reason = "price_corrected"
	ReasonCreditReceived Reason = "credit_received"
	ReasonAccepted       Reason = "accepted"
	ReasonDuplicate      Reason = "duplicate"
	ReasonOther          Reason = "other"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonPriceCorrected, ReasonCreditReceived, ReasonAccepted, ReasonDuplicate, ReasonOther:
		return true
	default:
		return false
	}
}

// Resolution records that a user dismissed an alert. It outlives cached results.
type Resolution struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"column:org_id;not null;uniqueIndex:ux_alert_resolutions_org_key,priority:1" json:"organization_id"`
	AlertKey   string       `gorm:"column:alert_key;type:text;not null;uniqueIndex:ux_alert_resolutions_org_key,priority:2" json:"alert_key"`
	AlertKind  AlertKind    `gorm:"column:alert_kind;type:text;not null" json:"alert_kind"`
	Reason     Reason       `gorm:"column:reason;type:text;not null" json:"reason"`
	Note       string       `gorm:"column:note;type:text" json:"note,omitempty"`
	ResolvedAt time.Time    `gorm:"column:resolved_at;not null" json:"resolved_at"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Resolution) TableName() string { return "alert_resolutions" }

// VariationKey is "{series}|variation". Persisted resolutions depend on this format.
func VariationKey(seriesKey string) string {
	return seriesKey + "|" + string(AlertKindVariation)
}

// AgreementKey is "{product}|{supplier}|{unit}|agreement".
func AgreementKey(product, supplier, unitType string) string {
	return product + "|" + supplier + "|" + unitType + "|" + string(AlertKindAgreement)
}

// KindOf extracts the alert kind from the key suffix.
func KindOf(alertKey string) (AlertKind, bool) {
	idx := strings.LastIndex(alertKey, "|")
	if idx <= 0 {
		return "", false
	}
	switch kind := AlertKind(alertKey[idx+1:]); kind {
	case AlertKindVariation, AlertKindAgreement:
		return kind, true
	default:
		return "", false
	}
}
