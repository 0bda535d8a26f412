package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cause is the slice of the content database the donation core reads: the
// cause must exist and may define its own minimum donation.
type Cause struct {
	ID              string              `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Title           string              `gorm:"column:title;type:varchar(256);not null" json:"title"`
	MinimumDonation decimal.NullDecimal `gorm:"column:minimum_donation;type:numeric(14,2)" json:"minimum_donation"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (Cause) TableName() string { return "cause" }
