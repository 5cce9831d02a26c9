// Package domain contains the driver aggregate and its persistence model.
package domain

import "time"

// IDBase is the first driver ID handed out when the ledger is empty.
const IDBase int64 = 1001

// Driver is the materialized aggregate for one driver account: a cached
// summary of the delivery log since the last claim boundary. It must always
// be re-derivable from the log.
type Driver struct {
	DriverID        int64     `gorm:"column:driver_id;primaryKey;autoIncrement:false" json:"driver_id"`
	Name            string    `gorm:"type:text;not null" json:"name"`
	Role            string    `gorm:"type:text;not null" json:"role"`
	TotalCollected  int64     `gorm:"not null;default:0" json:"total_collected"`
	UnclaimedPoints int64     `gorm:"not null;default:0" json:"unclaimed_points"`
	ClaimedPoints   int64     `gorm:"not null;default:0" json:"claimed_points"`
	Version         int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Driver) TableName() string { return "drivers" }
