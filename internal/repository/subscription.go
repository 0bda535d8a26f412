package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/pkg/types"
)

type SubscriptionRepo struct {
	db *gorm.DB
}

func (r *SubscriptionRepo) Create(ctx context.Context, s *models.Subscription) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SubscriptionRepo) Get(ctx context.Context, id string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// GetForUser returns ErrNotFound when the subscription belongs to someone else.
func (r *SubscriptionRepo) GetForUser(ctx context.Context, id, userID string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	var out []models.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}

// Transition is the subscription counterpart of DonationRepo.Transition.
func (r *SubscriptionRepo) Transition(ctx context.Context, id string, from []types.SubscriptionState, to types.SubscriptionState, set map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"state": to, "updated_at": time.Now().UTC()}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetGatewaySession records the checkout session while activation is pending.
func (r *SubscriptionRepo) SetGatewaySession(ctx context.Context, id, sessionID string) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND state = ?", id, types.SubscriptionStatePendingActivation).
		Updates(map[string]interface{}{"gateway_session_id": sessionID, "updated_at": time.Now().UTC()}).Error
}

// MarkCancelRequested stamps cancel_requested_at once; later calls are no-ops.
func (r *SubscriptionRepo) MarkCancelRequested(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND cancel_requested_at IS NULL", id).
		Updates(map[string]interface{}{"cancel_requested_at": at.UTC(), "updated_at": time.Now().UTC()}).Error
}

// ListStalePending returns subscriptions still awaiting activation that were
// created before cutoff.
func (r *SubscriptionRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error) {
	var out []models.Subscription
	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", types.SubscriptionStatePendingActivation, cutoff.UTC()).
		Order("created_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}
