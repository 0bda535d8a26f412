package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/donations/pkg/types"
)

// DonationEventOutbox holds "record state changed" notifications waiting for
// the dispatcher. Rows are written in the same transaction as the state
// change they describe; DedupeKey makes the insert idempotent.
type DonationEventOutbox struct {
	ID          string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	RecordType  types.RecordType  `gorm:"column:record_type;type:varchar(32);not null" json:"record_type"`
	RecordID    string            `gorm:"column:record_id;type:uuid;not null;index" json:"record_id"`
	State       string            `gorm:"column:state;type:varchar(32);not null" json:"state"`
	Payload     datatypes.JSONMap `gorm:"column:payload;type:jsonb" json:"payload"`
	DedupeKey   string            `gorm:"column:dedupe_key;type:varchar(255);not null;uniqueIndex" json:"dedupe_key"`
	Attempts    int               `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError   *string           `gorm:"column:last_error;type:text" json:"last_error"`
	PublishedAt *time.Time        `gorm:"column:published_at;default:null;index:idx_outbox_pending,priority:1" json:"published_at"`
	AbandonedAt *time.Time        `gorm:"column:abandoned_at;default:null;index:idx_outbox_pending,priority:2" json:"abandoned_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;index:idx_outbox_pending,priority:3" json:"created_at"`
}

func (DonationEventOutbox) TableName() string { return "donation_event_outbox" }
