package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/donations/pkg/types"
)

// Donation is a one-time donation intent and its payment lifecycle.
// Amount, cause and donor attribution are written once at creation; only
// State, ExternalReference, GatewaySessionID, FailureReason,
// AwaitingSettlementAt and CompletedAt change afterwards.
type Donation struct {
	ID          string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	CauseID     string          `gorm:"column:cause_id;type:varchar(64);not null;index:idx_donation_cause_state,priority:1" json:"cause_id"`
	UserID      *string         `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Currency    string          `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	DonorName   *string         `gorm:"column:donor_name;type:varchar(128)" json:"donor_name"`
	DonorEmail  *string         `gorm:"column:donor_email;type:varchar(256)" json:"donor_email"`
	IsAnonymous bool            `gorm:"column:is_anonymous;not null;default:false" json:"is_anonymous"`
	Message     *string         `gorm:"column:message;type:varchar(2000)" json:"message"`

	State types.DonationState `gorm:"column:state;type:varchar(32);not null;index:idx_donation_cause_state,priority:2;index:idx_donation_state_created,priority:1" json:"state"`
	// ExternalReference is the gateway transaction id, set by the reconciler.
	ExternalReference *string `gorm:"column:external_reference;type:varchar(128)" json:"external_reference"`
	// GatewaySessionID is the checkout session handed out at initiation.
	GatewaySessionID *string `gorm:"column:gateway_session_id;type:varchar(128)" json:"gateway_session_id"`
	FailureReason    *string `gorm:"column:failure_reason;type:varchar(64)" json:"failure_reason"`
	// AwaitingSettlementAt is set when the checkout completed with a delayed
	// payment method; the sweeper gives such donations the settlement timeout.
	AwaitingSettlementAt *time.Time `gorm:"column:awaiting_settlement_at;default:null" json:"awaiting_settlement_at"`

	CreatedAt   time.Time  `gorm:"column:created_at;index:idx_donation_state_created,priority:2" json:"created_at"`
	CompletedAt *time.Time `gorm:"column:completed_at;default:null" json:"completed_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Donation) TableName() string {
	return "donation"
}
