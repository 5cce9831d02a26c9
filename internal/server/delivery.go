package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/openfleet/tally/internal/delivery/domain"
	"github.com/openfleet/tally/pkg/db/pagination"
)

type recordDeliveryRequest struct {
	Amount     int64  `json:"amount"`
	BillNumber string `json:"bill_number"`
}

func (s *Server) RecordDelivery(c *gin.Context) {
	driverID, err := parseDriverID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req recordDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	drv, record, err := s.deliverySvc.Record(c.Request.Context(), deliverydomain.RecordDeliveryRequest{
		DriverID:   driverID,
		Amount:     req.Amount,
		BillNumber: strings.TrimSpace(req.BillNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"driver":   drv,
		"delivery": record,
	}})
}

func (s *Server) GetDeliveryHistory(c *gin.Context) {
	driverID, err := parseDriverID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		pagination.Pagination
		From string `form:"from"`
		To   string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, deliverydomain.ErrInvalidPeriod)
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, deliverydomain.ErrInvalidPeriod)
		return
	}

	resp, err := s.deliverySvc.History(c.Request.Context(), deliverydomain.HistoryRequest{
		Pagination: query.Pagination,
		DriverID:   driverID,
		From:       from,
		To:         to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReconciliation(c *gin.Context) {
	driverID, err := parseDriverID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.deliverySvc.Reconcile(c.Request.Context(), driverID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
