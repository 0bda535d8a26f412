package gateway_event_log

import (
	"context"
	"encoding/json"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/pkg/logctx"
	"github.com/fatflowers/donations/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Entry describes one inbound webhook delivery.
type Entry struct {
	Provider    string
	EventID     string
	EventType   string
	ReferenceID string
	Data        []byte
}

// Received stores the raw payload with status received and returns the row id.
// Failures are logged, never returned: the audit trail must not block
// reconciliation. An empty id means nothing was stored.
func (s *Service) Received(ctx context.Context, e Entry) string {
	row := &models.GatewayEventLog{
		ID:        tool.GenerateUUIDV7(),
		Provider:  e.Provider,
		EventID:   e.EventID,
		EventType: e.EventType,
		TraceID:   logctx.TraceID(ctx),
		Data:      rawJSON(e.Data),
		Status:    models.GatewayEventLogStatusReceived,
	}
	if e.ReferenceID != "" {
		row.ReferenceID = lo.ToPtr(e.ReferenceID)
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to save gateway event log", "event_id", e.EventID, "err", err)
		return ""
	}
	return row.ID
}

// Finish records the handling result on a row written by Received.
func (s *Service) Finish(ctx context.Context, id string, result map[string]any, handleErr error) {
	if id == "" {
		return
	}
	status := models.GatewayEventLogStatusHandled
	if result == nil {
		result = map[string]any{}
	}
	if handleErr != nil {
		status = models.GatewayEventLogStatusHandleFailed
		result["error"] = handleErr.Error()
	}
	b, _ := json.Marshal(result)
	err := s.db.WithContext(ctx).Model(&models.GatewayEventLog{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "result": datatypes.JSON(b)}).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to update gateway event log", "id", id, "err", err)
	}
}

// rawJSON keeps valid JSON payloads as-is and wraps anything else as a string.
func rawJSON(b []byte) datatypes.JSON {
	if json.Valid(b) {
		return datatypes.JSON(b)
	}
	wrapped, _ := json.Marshal(string(b))
	return datatypes.JSON(wrapped)
}

var Module = fx.Options(fx.Provide(New))
