package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/access"
)

func (s *Server) AdminGetTenant(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, access.TenantNotFound())
		return
	}

	tenant, err := s.tenants.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	status, err := s.billing.PlanStatus(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": tenant, "planStatus": status})
}

// AdminSetTenantActive toggles the tenant's active flag. Inactive tenants are
// always blocked.
func (s *Server) AdminSetTenantActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
		if err != nil {
			AbortWithError(c, access.TenantNotFound())
			return
		}
		if err := s.tenants.SetActive(c.Request.Context(), id, active); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "isActive": active})
	}
}
