// Package domain defines the claim state transition on the driver aggregate.
package domain

import (
	"context"
	"errors"

	driverdomain "github.com/openfleet/tally/internal/driver/domain"
)

type Service interface {
	// Claim consumes exactly one unclaimed point and resets the running
	// total. It never writes a delivery log entry: the audit trail for the
	// crossing lives in the claimed flags already present in the log.
	Claim(ctx context.Context, driverID int64) (*driverdomain.Driver, error)
}

var (
	// ErrNothingToClaim is a precondition failure, not a fault: the driver
	// has no unclaimed points and nothing was mutated.
	ErrNothingToClaim = errors.New("nothing_to_claim")
)
