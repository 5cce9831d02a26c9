package repository

import (
	"context"
	"errors"

	driverdomain "github.com/openfleet/tally/internal/driver/domain"
	"gorm.io/gorm"
)

type repository struct{}

func NewRepository() driverdomain.Repository {
	return &repository{}
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, driverID int64) (*driverdomain.Driver, error) {
	var driver driverdomain.Driver
	err := db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		First(&driver).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &driver, nil
}

func (r *repository) NextID(ctx context.Context, tx *gorm.DB) (int64, error) {
	var next int64
	err := tx.WithContext(ctx).
		Raw(`SELECT COALESCE(MAX(driver_id), ?) + 1 FROM drivers`, driverdomain.IDBase-1).
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, driver *driverdomain.Driver) error {
	return tx.WithContext(ctx).Create(driver).Error
}

func (r *repository) UpdateGuarded(ctx context.Context, tx *gorm.DB, driver *driverdomain.Driver, expectedVersion int64) (bool, error) {
	result := tx.WithContext(ctx).Model(&driverdomain.Driver{}).
		Where("driver_id = ? AND version = ?", driver.DriverID, expectedVersion).
		Updates(map[string]any{
			"total_collected":  driver.TotalCollected,
			"unclaimed_points": driver.UnclaimedPoints,
			"claimed_points":   driver.ClaimedPoints,
			"version":          driver.Version,
			"updated_at":       driver.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Delete(ctx context.Context, tx *gorm.DB, driverID int64) (int64, error) {
	result := tx.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Delete(&driverdomain.Driver{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
