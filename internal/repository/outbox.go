package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

// OutboxEvent announces that a record reached State.
type OutboxEvent struct {
	RecordType types.RecordType
	RecordID   string
	State      string
	Payload    map[string]interface{}
	// DedupeKey defaults to record_type:record_id:state.
	DedupeKey string
}

type OutboxRepo struct {
	db *gorm.DB
}

// Publish stores e unless an event with the same dedupe key exists. Call it
// on a transaction-bound Repositories so the event commits with the state
// change.
func (r *OutboxRepo) Publish(ctx context.Context, e OutboxEvent) error {
	if e.RecordID == "" || e.State == "" {
		return errors.New("outbox: record id and state are required")
	}
	payload := datatypes.JSONMap{}
	for k, v := range e.Payload {
		if strings.TrimSpace(k) != "" {
			payload[k] = v
		}
	}
	dedupe := strings.TrimSpace(e.DedupeKey)
	if dedupe == "" {
		dedupe = string(e.RecordType) + ":" + e.RecordID + ":" + e.State
	}
	row := &models.DonationEventOutbox{
		ID:         tool.GenerateUUIDV7(),
		RecordType: e.RecordType,
		RecordID:   e.RecordID,
		State:      e.State,
		Payload:    payload,
		DedupeKey:  dedupe,
		CreatedAt:  time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(row).Error
}

// ListPending returns undelivered, non-abandoned events in insertion order.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]models.DonationEventOutbox, error) {
	var out []models.DonationEventOutbox
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL AND abandoned_at IS NULL").
		Order("created_at, id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.DonationEventOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"published_at": at.UTC(), "attempts": gorm.Expr("attempts + 1")}).Error
}

// MarkFailed records a failed delivery. Once attempts reaches maxAttempts the
// row is abandoned and no longer returned by ListPending.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) (abandoned bool, err error) {
	msg := cause.Error()
	if err := r.db.WithContext(ctx).Model(&models.DonationEventOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"attempts": gorm.Expr("attempts + 1"), "last_error": msg}).Error; err != nil {
		return false, err
	}
	if maxAttempts <= 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&models.DonationEventOutbox{}).
		Where("id = ? AND attempts >= ? AND abandoned_at IS NULL", id, maxAttempts).
		Update("abandoned_at", time.Now().UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OutboxRepo) Get(ctx context.Context, id string) (*models.DonationEventOutbox, error) {
	var row models.DonationEventOutbox
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}
