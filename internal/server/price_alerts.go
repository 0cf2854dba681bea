package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	detectiondomain "github.com/smallbiznis/pricewatch/internal/detection/domain"
	"github.com/smallbiznis/pricewatch/internal/report"
)

func (s *Server) runFromQuery(c *gin.Context) (detectiondomain.Report, bool) {
	filter, err := parseFilter(c, orgIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return detectiondomain.Report{}, false
	}
	includeResolved, err := parseFlag(c, "include_resolved")
	if err != nil {
		AbortWithError(c, err)
		return detectiondomain.Report{}, false
	}
	refresh, err := parseFlag(c, "refresh")
	if err != nil {
		AbortWithError(c, err)
		return detectiondomain.Report{}, false
	}

	result, err := s.detectionSvc.Run(c.Request.Context(), filter, detectiondomain.RunOptions{
		IncludeResolved: includeResolved,
		Refresh:         refresh,
	})
	if err != nil {
		AbortWithError(c, err)
		return detectiondomain.Report{}, false
	}

	switch {
	case refresh:
		c.Set(contextCacheKey, cacheStateBypass)
	case result.Cached:
		c.Set(contextCacheKey, cacheStateHit)
	default:
		c.Set(contextCacheKey, cacheStateMiss)
	}
	return result, true
}

func (s *Server) ListPriceAlerts(c *gin.Context) {
	result, ok := s.runFromQuery(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ExportPriceAlerts(c *gin.Context) {
	result, ok := s.runFromQuery(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, result); err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("price-alerts-%s.xlsx", result.GeneratedAt.Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

func (s *Server) InvalidatePriceAlerts(c *gin.Context) {
	filter, err := parseFilter(c, orgIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.detectionSvc.Invalidate(c.Request.Context(), filter); err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.Status(http.StatusNoContent)
}
