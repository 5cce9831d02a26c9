// Package domain contains the append-only delivery log and the accrual policy.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Threshold is the delivered value that triggers one incentive point.
const Threshold int64 = 100000

// Delivery is one append-only log entry. Once written, amount, date and the
// claimed flag are immutable; corrections are compensating entries, never
// edits. Rows are removed only by driver-delete cascade.
type Delivery struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	DriverID   int64        `gorm:"not null;index" json:"driver_id"`
	Amount     int64        `gorm:"not null" json:"amount"`
	BillNumber string       `gorm:"type:text" json:"bill_number"`
	Claimed    bool         `gorm:"not null" json:"claimed"` // this delivery crossed the threshold
	Date       time.Time    `gorm:"not null;index" json:"date"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Delivery) TableName() string { return "deliveries" }
