package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	resolutiondomain "github.com/smallbiznis/pricewatch/internal/resolution/domain"
)

type resolveRequest struct {
	AlertKey string `json:"alert_key"`
	Reason   string `json:"reason"`
	Note     string `json:"note"`
}

func (s *Server) ResolveAlert(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resolution, err := s.resolutionSvc.Resolve(c.Request.Context(), resolutiondomain.ResolveRequest{
		AlertKey: req.AlertKey,
		Reason:   resolutiondomain.Reason(req.Reason),
		Note:     req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resolution})
}

func (s *Server) ListResolutions(c *gin.Context) {
	items, err := s.resolutionSvc.List(c.Request.Context(), resolutiondomain.ListResolutionRequest{
		Kind: resolutiondomain.AlertKind(strings.TrimSpace(c.Query("kind"))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetResolution(c *gin.Context) {
	resolution, err := s.resolutionSvc.GetResolution(c.Request.Context(), alertKeyParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resolution == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resolution})
}

func (s *Server) UnresolveAlert(c *gin.Context) {
	if err := s.resolutionSvc.Unresolve(c.Request.Context(), alertKeyParam(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Alert keys may carry slashes from free-text product descriptions, so the
// route uses a catch-all segment.
func alertKeyParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}
