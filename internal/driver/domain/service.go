package domain

import (
	"context"
	"errors"

	"github.com/openfleet/tally/pkg/db/pagination"
)

type CreateDriverRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type ListDriversRequest struct {
	pagination.Pagination
	Name string
	Role string
}

type ListDriversResponse struct {
	pagination.PageInfo
	Drivers []Driver `json:"drivers"`
}

type Service interface {
	Create(ctx context.Context, req CreateDriverRequest) (*Driver, error)
	GetByID(ctx context.Context, driverID int64) (*Driver, error)
	List(ctx context.Context, req ListDriversRequest) (ListDriversResponse, error)
	Delete(ctx context.Context, driverID int64) error
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidDriverID = errors.New("invalid_driver_id")
	ErrDriverNotFound  = errors.New("driver_not_found")

	// ErrConcurrentUpdateExhausted means the bounded optimistic retries ran out.
	// The prior state is untouched; callers may retry after a backoff.
	ErrConcurrentUpdateExhausted = errors.New("concurrent_update_exhausted")

	// ErrPartialCascade means a driver delete could not remove both the
	// aggregate and its delivery log atomically. It requires manual
	// reconciliation and must never be swallowed.
	ErrPartialCascade = errors.New("partial_cascade_failure")
)
