package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/donations/internal/models"
)

// CauseRepo reads causes owned by the content side of the database.
type CauseRepo struct {
	db *gorm.DB
}

func (r *CauseRepo) Get(ctx context.Context, id string) (*models.Cause, error) {
	var c models.Cause
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// Upsert is used by seeding and tests.
func (r *CauseRepo) Upsert(ctx context.Context, c *models.Cause) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(c).Error
}
