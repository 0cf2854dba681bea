package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	purchasingdomain "github.com/smallbiznis/pricewatch/internal/purchasing/domain"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalTime(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// queryList accepts both repeated parameters and comma separated values.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseFilter(c *gin.Context, orgID snowflake.ID) (purchasingdomain.Filter, error) {
	filter := purchasingdomain.Filter{
		OrgID:           orgID,
		BusinessUnitID:  c.Query("business_unit_id"),
		LocationIDs:     queryList(c, "location_id"),
		SupplierIDs:     queryList(c, "supplier_id"),
		Categories:      queryList(c, "category"),
		DocumentType:    c.Query("document_type"),
		Search:          c.Query("search"),
		ProductCodeMode: purchasingdomain.ProductCodeMode(c.Query("product_code")),
	}

	from, err := parseOptionalTime(c.Query("date_from"))
	if err != nil {
		return purchasingdomain.Filter{}, newValidationError("date_from", "invalid_date_from", "invalid date")
	}
	if from != nil {
		filter.DateFrom = *from
	}
	to, err := parseOptionalTime(c.Query("date_to"))
	if err != nil {
		return purchasingdomain.Filter{}, newValidationError("date_to", "invalid_date_to", "invalid date")
	}
	if to != nil {
		filter.DateTo = *to
	}

	if err := filter.Validate(); err != nil {
		return purchasingdomain.Filter{}, err
	}
	return filter, nil
}

func parseFlag(c *gin.Context, key string) (bool, error) {
	v, err := parseOptionalBool(c.Query(key))
	if err != nil {
		return false, newValidationError(key, "invalid_"+key, "invalid boolean")
	}
	return v != nil && *v, nil
}
