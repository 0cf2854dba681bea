package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIgnoresListOrder(t *testing.T) {
	a := Filter{
		OrgID:       1,
		DateFrom:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		LocationIDs: []string{"loc-2", "loc-1"},
		SupplierIDs: []string{"sup-b", "sup-a", "sup-a"},
		Categories:  []string{"Dairy", "produce"},
		Search:      "Milk  whole",
	}
	b := Filter{
		OrgID:       1,
		DateFrom:    time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC),
		DateTo:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		LocationIDs: []string{"loc-1", "loc-2"},
		SupplierIDs: []string{"sup-a", "sup-b"},
		Categories:  []string{"PRODUCE", "dairy"},
		Search:      "whole milk",
	}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, string(a.Canonical()), string(b.Canonical()))
}

func TestFingerprintDistinguishesScope(t *testing.T) {
	base := Filter{OrgID: 1, LocationIDs: []string{"loc-1"}}

	other := base
	other.OrgID = 2
	assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())

	other = base
	other.ProductCodeMode = ProductCodeWithout
	assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())

	other = base
	other.LocationIDs = nil
	assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
}

func TestFilterValidate(t *testing.T) {
	assert.ErrorIs(t, Filter{}.Validate(), ErrInvalidOrganization)

	f := Filter{
		OrgID:    1,
		DateFrom: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.ErrorIs(t, f.Validate(), ErrInvalidFilter)

	f = Filter{OrgID: 1, ProductCodeMode: "sometimes"}
	assert.ErrorIs(t, f.Validate(), ErrInvalidFilter)

	f = Filter{OrgID: 1, ProductCodeMode: "WITH_CODE"}
	assert.NoError(t, f.Validate())
}

func TestProductIdentityFallsBackToDescription(t *testing.T) {
	assert.Equal(t, "SKU-1", InvoiceLine{ProductCode: " SKU-1 ", Description: "Milk"}.ProductIdentity())
	assert.Equal(t, "Milk 1L", InvoiceLine{ProductCode: "  ", Description: "Milk 1L"}.ProductIdentity())
}
