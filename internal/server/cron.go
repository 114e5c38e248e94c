package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunCronJob triggers one reconciliation job. A job skipped because another
// instance holds its lock still answers 200.
func (s *Server) RunCronJob(job string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.reconciler.Run(c.Request.Context(), job)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
