package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository is the ledger store's aggregate side. Every mutation of a driver
// row goes through UpdateGuarded so concurrent read-modify-write cycles on
// the same driver serialize instead of losing updates.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, driverID int64) (*Driver, error)
	NextID(ctx context.Context, tx *gorm.DB) (int64, error)
	Insert(ctx context.Context, tx *gorm.DB, driver *Driver) error

	// UpdateGuarded writes the aggregate conditionally on the version the
	// caller read. It returns false when the row changed underneath the
	// caller, in which case nothing was written.
	UpdateGuarded(ctx context.Context, tx *gorm.DB, driver *Driver, expectedVersion int64) (bool, error)

	Delete(ctx context.Context, tx *gorm.DB, driverID int64) (int64, error)
}
