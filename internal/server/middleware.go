package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pricewatch/internal/observability/context"
	"github.com/smallbiznis/pricewatch/internal/orgcontext"
	purchasingdomain "github.com/smallbiznis/pricewatch/internal/purchasing/domain"
)

const (
	HeaderOrg        = "X-Org-ID"
	contextOrgIDKey  = "org_id"
	contextCacheKey  = "cache"
	cacheStateHit    = "hit"
	cacheStateMiss   = "miss"
	cacheStateBypass = "bypass"
)

// OrgContext resolves the organization from X-Org-ID, falling back to DEFAULT_ORG.
// Requests with neither are unauthorized.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := snowflake.ID(s.cfg.DefaultOrgID)
		if raw := strings.TrimSpace(c.GetHeader(HeaderOrg)); raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil || parsed <= 0 {
				AbortWithError(c, purchasingdomain.ErrInvalidOrganization)
				return
			}
			orgID = parsed
		}
		if orgID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextOrgIDKey, orgID)
		c.Next()
	}
}

func orgIDFrom(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextOrgIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}
