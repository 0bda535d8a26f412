package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/pkg/types"
)

type DonationRepo struct {
	db *gorm.DB
}

func (r *DonationRepo) Create(ctx context.Context, d *models.Donation) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DonationRepo) Get(ctx context.Context, id string) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&d).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// Transition moves the donation to `to` only if its current state is one of
// `from`. Extra column values in set are written in the same statement.
func (r *DonationRepo) Transition(ctx context.Context, id string, from []types.DonationState, to types.DonationState, set map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"state": to, "updated_at": time.Now().UTC()}
	for k, v := range set {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// StaleCutoffs bound how long a donation may stay pending. Donations awaiting
// a delayed settlement are measured from the checkout completion against
// Settlement; all others from creation against Initiated.
type StaleCutoffs struct {
	Initiated  time.Time
	Settlement time.Time
}

func (c StaleCutoffs) scope(db *gorm.DB) *gorm.DB {
	return db.Where("state IN ?", types.DonationPendingStates).
		Where(db.Session(&gorm.Session{NewDB: true}).
			Where("awaiting_settlement_at IS NULL AND created_at < ?", c.Initiated.UTC()).
			Or("awaiting_settlement_at IS NOT NULL AND awaiting_settlement_at < ?", c.Settlement.UTC()))
}

// ListStalePending returns pending donations past their cutoff, oldest first.
func (r *DonationRepo) ListStalePending(ctx context.Context, cutoffs StaleCutoffs, limit int) ([]models.Donation, error) {
	var out []models.Donation
	err := r.db.WithContext(ctx).
		Scopes(cutoffs.scope).
		Order("created_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ExpireStale moves the donation to expired only while it is still pending
// and past its cutoff, so a settlement recorded after the listing wins.
func (r *DonationRepo) ExpireStale(ctx context.Context, id string, cutoffs StaleCutoffs, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("id = ?", id).
		Scopes(cutoffs.scope).
		Updates(map[string]interface{}{
			"state":          types.DonationStateExpired,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListCompletedByCause pages through a cause's completed donations, newest first.
func (r *DonationRepo) ListCompletedByCause(ctx context.Context, causeID string, limit, offset int) ([]models.Donation, int64, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Donation{}).
			Where("cause_id = ? AND state = ?", causeID, types.DonationStateCompleted)
	}
	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Donation
	if err := scope().Order("completed_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SumCompletedByCause totals completed donation amounts for a cause.
func (r *DonationRepo) SumCompletedByCause(ctx context.Context, causeID string) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	err := r.db.WithContext(ctx).Model(&models.Donation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("cause_id = ? AND state = ?", causeID, types.DonationStateCompleted).
		Scan(&row).Error
	return row.Total, err
}

var donationFilterColumns = map[string]types.FilterKind{
	"id": types.FilterKindKey, "cause_id": types.FilterKindKey, "user_id": types.FilterKindKey,
	"state": types.FilterKindKey, "currency": types.FilterKindKey,
	"amount":       types.FilterKindAmount,
	"is_anonymous": types.FilterKindFlag,
	"created_at":   types.FilterKindTime, "completed_at": types.FilterKindTime,
}

// List is the admin listing; filters may only reference plain columns.
func (r *DonationRepo) List(ctx context.Context, filters []*types.CommonFilter, limit, offset int) ([]models.Donation, int64, error) {
	scope := func() (*gorm.DB, error) {
		return applyFilters(r.db.WithContext(ctx).Model(&models.Donation{}), filters, donationFilterColumns)
	}
	q, err := scope()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q, _ = scope()
	var out []models.Donation
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
