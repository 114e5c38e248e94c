package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/access"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
)

type updateMemberRequest struct {
	Role string `json:"role"`
}

func (s *Server) ListMembers(c *gin.Context) {
	tc, ok := tenantctx.From(c.Request.Context())
	if !ok {
		AbortWithError(c, access.TenantNotSpecified())
		return
	}

	members, err := s.tenants.ListMembers(c.Request.Context(), tc.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) UpdateMember(c *gin.Context) {
	tc, ok := tenantctx.From(c.Request.Context())
	if !ok {
		AbortWithError(c, access.TenantNotSpecified())
		return
	}

	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	role, ok := tenantdomain.ParseRole(req.Role)
	if !ok {
		AbortWithError(c, tenantdomain.ErrInvalidRole)
		return
	}

	userID := strings.TrimSpace(c.Param("userId"))
	if err := s.tenants.UpdateMemberRole(c.Request.Context(), tc.TenantID, userID, role); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) RemoveMember(c *gin.Context) {
	tc, ok := tenantctx.From(c.Request.Context())
	if !ok {
		AbortWithError(c, access.TenantNotSpecified())
		return
	}

	userID := strings.TrimSpace(c.Param("userId"))
	if err := s.tenants.RemoveMember(c.Request.Context(), tc.TenantID, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
