package models

import (
	"time"

	"gorm.io/datatypes"
)

type GatewayEventLogStatus string

const (
	GatewayEventLogStatusReceived     GatewayEventLogStatus = "received"
	GatewayEventLogStatusHandled      GatewayEventLogStatus = "handled"
	GatewayEventLogStatusHandleFailed GatewayEventLogStatus = "handle_failed"
)

// GatewayEventLog is the raw audit trail of inbound gateway webhooks, kept
// for manual inspection of orphaned or conflicting events.
type GatewayEventLog struct {
	ID          string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider    string                `gorm:"column:provider;type:varchar(64);not null" json:"provider"`
	EventID     string                `gorm:"column:event_id;type:varchar(128);index" json:"event_id"`
	EventType   string                `gorm:"column:event_type;type:varchar(128)" json:"event_type"`
	ReferenceID *string               `gorm:"column:reference_id;type:varchar(64);index" json:"reference_id"`
	TraceID     string                `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Data        datatypes.JSON        `gorm:"column:data;type:jsonb" json:"data"`
	Result      *datatypes.JSON       `gorm:"column:result;type:jsonb" json:"result"`
	Status      GatewayEventLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func (GatewayEventLog) TableName() string { return "gateway_event_log" }
