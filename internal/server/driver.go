package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	"github.com/openfleet/tally/pkg/db/pagination"
)

type createDriverRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s *Server) CreateDriver(c *gin.Context) {
	var req createDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.driverSvc.Create(c.Request.Context(), driverdomain.CreateDriverRequest{
		Name: strings.TrimSpace(req.Name),
		Role: strings.TrimSpace(req.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDrivers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name string `form:"name"`
		Role string `form:"role"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.driverSvc.List(c.Request.Context(), driverdomain.ListDriversRequest{
		Pagination: query.Pagination,
		Name:       strings.TrimSpace(query.Name),
		Role:       strings.TrimSpace(query.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDriverByID(c *gin.Context) {
	driverID, err := parseDriverID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.driverSvc.GetByID(c.Request.Context(), driverID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteDriver(c *gin.Context) {
	driverID, err := parseDriverID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.driverSvc.Delete(c.Request.Context(), driverID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"driver_id": driverID}})
}
