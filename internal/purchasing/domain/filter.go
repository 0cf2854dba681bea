package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ProductCodeMode string

const (
	ProductCodeAll     ProductCodeMode = "all"
	ProductCodeWith    ProductCodeMode = "with_code"
	ProductCodeWithout ProductCodeMode = "without_code"
)

const dateLayout = "2006-01-02"

// Filter enumerates every recognised filter field. Zero values mean "unconstrained",
// except LocationIDs: an empty list restricts results to lines with a mapped location.
type Filter struct {
	OrgID           snowflake.ID
	BusinessUnitID  string
	DateFrom        time.Time
	DateTo          time.Time
	LocationIDs     []string
	SupplierIDs     []string
	Categories      []string
	DocumentType    string
	Search          string
	ProductCodeMode ProductCodeMode
}

// canonicalFilter is the serialised form used for fingerprints and equality.
type canonicalFilter struct {
	OrgID           string   `json:"org"`
	BusinessUnitID  string   `json:"bu"`
	DateFrom        string   `json:"from"`
	DateTo          string   `json:"to"`
	LocationIDs     []string `json:"locations"`
	SupplierIDs     []string `json:"suppliers"`
	Categories      []string `json:"categories"`
	DocumentType    string   `json:"document_type"`
	SearchTerms     []string `json:"search"`
	ProductCodeMode string   `json:"product_code"`
}

// Normalize returns a copy with trimmed, de-duplicated and sorted list fields.
func (f Filter) Normalize() Filter {
	out := f
	out.BusinessUnitID = strings.TrimSpace(f.BusinessUnitID)
	if !f.DateFrom.IsZero() {
		out.DateFrom = truncateDay(f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		out.DateTo = truncateDay(f.DateTo)
	}
	out.LocationIDs = normalizeList(f.LocationIDs, false)
	out.SupplierIDs = normalizeList(f.SupplierIDs, false)
	out.Categories = normalizeList(f.Categories, true)
	out.DocumentType = strings.ToLower(strings.TrimSpace(f.DocumentType))
	out.Search = strings.Join(f.SearchTerms(), " ")
	out.ProductCodeMode = normalizeProductCodeMode(f.ProductCodeMode)
	return out
}

// SearchTerms splits the free-text search into lower-cased, sorted, unique terms.
func (f Filter) SearchTerms() []string {
	return normalizeList(strings.Fields(f.Search), true)
}

func (f Filter) Validate() error {
	if f.OrgID == 0 {
		return ErrInvalidOrganization
	}
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateTo.Before(f.DateFrom) {
		return ErrInvalidFilter
	}
	switch normalizeProductCodeMode(f.ProductCodeMode) {
	case ProductCodeAll, ProductCodeWith, ProductCodeWithout:
	default:
		return ErrInvalidFilter
	}
	return nil
}

// Canonical returns the deterministic serialisation of the normalised filter.
func (f Filter) Canonical() []byte {
	n := f.Normalize()
	c := canonicalFilter{
		OrgID:           n.OrgID.String(),
		BusinessUnitID:  n.BusinessUnitID,
		DateFrom:        formatDate(n.DateFrom),
		DateTo:          formatDate(n.DateTo),
		LocationIDs:     emptyIfNil(n.LocationIDs),
		SupplierIDs:     emptyIfNil(n.SupplierIDs),
		Categories:      emptyIfNil(n.Categories),
		DocumentType:    n.DocumentType,
		SearchTerms:     emptyIfNil(n.SearchTerms()),
		ProductCodeMode: string(n.ProductCodeMode),
	}
	// Struct field order is fixed, so the encoding is stable.
	b, _ := json.Marshal(c)
	return b
}

// Fingerprint is the cache key for this filter set.
func (f Filter) Fingerprint() string {
	sum := sha256.Sum256(f.Canonical())
	return "alerts:" + hex.EncodeToString(sum[:])
}

func normalizeProductCodeMode(mode ProductCodeMode) ProductCodeMode {
	value := ProductCodeMode(strings.ToLower(strings.TrimSpace(string(mode))))
	if value == "" {
		return ProductCodeAll
	}
	return value
}

func normalizeList(values []string, lower bool) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
