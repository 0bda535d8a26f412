package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/donations/internal/models"
)

type ChargeRepo struct {
	db *gorm.DB
}

// InsertIfAbsent records a charge keyed by its external reference. It returns
// false when a charge with the same reference already exists.
func (r *ChargeRepo) InsertIfAbsent(ctx context.Context, c *models.SubscriptionCharge) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_reference"}}, DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ChargeRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]models.SubscriptionCharge, error) {
	var out []models.SubscriptionCharge
	err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Order("occurred_at").Find(&out).Error
	return out, err
}
