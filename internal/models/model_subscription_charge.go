package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/donations/pkg/types"
)

// SubscriptionCharge is one gateway charge attempt for a subscription.
// SubscriptionID is fixed at insert time; ExternalReference is unique so a
// redelivered charge event cannot add a second row.
type SubscriptionCharge struct {
	ID                string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID    string            `gorm:"column:subscription_id;type:uuid;not null;index:idx_charge_subscription_created,priority:1" json:"subscription_id"`
	Amount            decimal.Decimal   `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency          string            `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	State             types.ChargeState `gorm:"column:state;type:varchar(32);not null" json:"state"`
	ExternalReference string            `gorm:"column:external_reference;type:varchar(128);not null;uniqueIndex" json:"external_reference"`
	FailureReason     *string           `gorm:"column:failure_reason;type:varchar(64)" json:"failure_reason"`
	OccurredAt        time.Time         `gorm:"column:occurred_at" json:"occurred_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;index:idx_charge_subscription_created,priority:2" json:"created_at"`
}

func (SubscriptionCharge) TableName() string {
	return "subscription_charge"
}
