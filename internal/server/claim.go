package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ClaimPoints(c *gin.Context) {
	driverID, err := parseDriverID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	drv, err := s.claimSvc.Claim(c.Request.Context(), driverID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": drv})
}
