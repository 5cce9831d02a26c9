package domain

import (
	"context"
	"errors"
	"time"

	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	"github.com/openfleet/tally/pkg/db/pagination"
)

type RecordDeliveryRequest struct {
	DriverID   int64  `json:"driver_id"`
	Amount     int64  `json:"amount"`
	BillNumber string `json:"bill_number"`
}

type HistoryRequest struct {
	pagination.Pagination
	DriverID int64
	From     *time.Time
	To       *time.Time
}

type HistoryResponse struct {
	pagination.PageInfo
	Deliveries []Delivery `json:"deliveries"`
}

// ReconciliationReport compares the materialized aggregate against what the
// append-only log says it should be.
type ReconciliationReport struct {
	DriverID        int64 `json:"driver_id"`
	AccrualEntries  int64 `json:"accrual_entries"` // deliveries with claimed = true
	UnclaimedPoints int64 `json:"unclaimed_points"`
	ClaimedPoints   int64 `json:"claimed_points"`
	Consistent      bool  `json:"consistent"`
}

type Service interface {
	Record(ctx context.Context, req RecordDeliveryRequest) (*driverdomain.Driver, *Delivery, error)
	History(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
	Reconcile(ctx context.Context, driverID int64) (ReconciliationReport, error)
}

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidPeriod = errors.New("invalid_period")
)
