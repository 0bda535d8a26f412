package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/donations/pkg/types"
)

// Subscription is a recurring donation intent. Individual charges live in
// SubscriptionCharge; this row only tracks the agreement's current state.
type Subscription struct {
	ID               string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID           string                 `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	CauseID          string                 `gorm:"column:cause_id;type:varchar(64);not null;index" json:"cause_id"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency         string                 `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Frequency        types.Frequency        `gorm:"column:frequency;type:varchar(16);not null" json:"frequency"`
	SubscriptionType types.SubscriptionType `gorm:"column:subscription_type;type:varchar(64);not null" json:"subscription_type"`
	DonorName        *string                `gorm:"column:donor_name;type:varchar(128)" json:"donor_name"`
	DonorEmail       *string                `gorm:"column:donor_email;type:varchar(256)" json:"donor_email"`
	IsAnonymous      bool                   `gorm:"column:is_anonymous;not null;default:false" json:"is_anonymous"`
	Message          *string                `gorm:"column:message;type:varchar(2000)" json:"message"`

	State                  types.SubscriptionState `gorm:"column:state;type:varchar(32);not null;index:idx_subscription_state_created,priority:1" json:"state"`
	ExternalSubscriptionID *string                 `gorm:"column:external_subscription_id;type:varchar(128)" json:"external_subscription_id"`
	GatewaySessionID       *string                 `gorm:"column:gateway_session_id;type:varchar(128)" json:"gateway_session_id"`
	FailureReason          *string                 `gorm:"column:failure_reason;type:varchar(64)" json:"failure_reason"`

	CreatedAt         time.Time  `gorm:"column:created_at;index:idx_subscription_state_created,priority:2" json:"created_at"`
	ActivatedAt       *time.Time `gorm:"column:activated_at;default:null" json:"activated_at"`
	CancelRequestedAt *time.Time `gorm:"column:cancel_requested_at;default:null" json:"cancel_requested_at"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}
