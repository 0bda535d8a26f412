// Package repository holds the gorm-backed stores for donation records.
//
// State changes go through conditional updates ("UPDATE ... WHERE state IN
// (...)"): a transition reports whether it was applied, and exactly one of
// several racing writers observes true.
package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fatflowers/donations/pkg/types"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

// Repositories bundles the stores bound to one connection or transaction.
type Repositories struct {
	db *gorm.DB

	Donations     *DonationRepo
	Subscriptions *SubscriptionRepo
	Charges       *ChargeRepo
	Outbox        *OutboxRepo
	Causes        *CauseRepo
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		Donations:     &DonationRepo{db: db},
		Subscriptions: &SubscriptionRepo{db: db},
		Charges:       &ChargeRepo{db: db},
		Outbox:        &OutboxRepo{db: db},
		Causes:        &CauseRepo{db: db},
	}
}

// Transaction runs fn with stores bound to a single database transaction.
// Returning an error from fn rolls everything back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func (r *Repositories) DB() *gorm.DB { return r.db }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// applyFilters adds admin list filters, allowing only the given columns and
// the operators their kind supports.
func applyFilters(q *gorm.DB, filters []*types.CommonFilter, allowed map[string]types.FilterKind) (*gorm.DB, error) {
	for _, f := range filters {
		if f == nil || len(f.Values) == 0 {
			continue
		}
		kind, ok := allowed[f.Field]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Field)
		}
		if err := f.Validate(kind); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFilter, err)
		}
		q = q.Where(f)
	}
	return q, nil
}

var Module = fx.Options(fx.Provide(New))
