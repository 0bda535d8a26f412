package statistics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/pkg/types"
)

var ErrInvalidRequest = errors.New("invalid statistic request")

type StatisticType string

const (
	// Raised money
	StatisticTypeTotalRaised     StatisticType = "total_raised"
	StatisticTypeRecurringRaised StatisticType = "recurring_raised"
	StatisticTypeDailyDonations  StatisticType = "daily_donations"
	StatisticTypeRecurringVolume StatisticType = "active_recurring_volume"

	// Record counts
	StatisticTypeDonationStates     StatisticType = "donation_state_count"
	StatisticTypeSubscriptionStates StatisticType = "subscription_state_count"
)

// Filters only ever reference these columns; each query qualifies them with
// its own table alias.
var filterColumns = map[string]types.FilterKind{"cause_id": types.FilterKindKey, "currency": types.FilterKindKey}

type DataItem struct {
	ID StatisticType `json:"id"`
}

type Request struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*DataItem           `json:"data_items"`
}

type Item struct {
	Date     string          `json:"date,omitempty"`
	Label    string          `json:"label,omitempty"`
	Currency string          `json:"currency,omitempty"`
	Count    int64           `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
}

type Response struct {
	DataItems map[StatisticType][]Item `json:"data_items"`
}

// where qualifies the request filters with alias and ANDs them together.
type where struct {
	alias   string
	filters []*types.CommonFilter
}

func (w where) Build(builder clause.Builder) {
	n := 0
	for _, f := range w.filters {
		if f == nil || len(f.Values) == 0 {
			continue
		}
		if n > 0 {
			builder.WriteString(" AND ")
		}
		q := *f
		q.Field = w.alias + "." + f.Field
		q.Build(builder)
		n++
	}
	if n == 0 {
		builder.WriteString("1=1")
	}
}

// Service computes admin reporting figures over donations and subscriptions.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) scoped(ctx context.Context, table, alias string, r *Request) *gorm.DB {
	return s.db.WithContext(ctx).Table(table + " AS " + alias).
		Where(clause.Where{Exprs: []clause.Expression{where{alias: alias, filters: r.Filters}}})
}

func (s *Service) totalRaised(ctx context.Context, r *Request) ([]Item, error) {
	var out []Item
	err := s.scoped(ctx, models.Donation{}.TableName(), "d", r).
		Select("d.cause_id AS label, d.currency AS currency, COUNT(*) AS count, COALESCE(SUM(d.amount), 0) AS amount").
		Where("d.state = ?", types.DonationStateCompleted).
		Group("d.cause_id, d.currency").
		Order("d.cause_id, d.currency").
		Scan(&out).Error
	return out, err
}

func (s *Service) recurringRaised(ctx context.Context, r *Request) ([]Item, error) {
	var out []Item
	err := s.scoped(ctx, models.Subscription{}.TableName(), "s", r).
		Joins("JOIN subscription_charge AS c ON c.subscription_id = s.id").
		Select("s.cause_id AS label, c.currency AS currency, COUNT(*) AS count, COALESCE(SUM(c.amount), 0) AS amount").
		Where("c.state = ?", types.ChargeStateCompleted).
		Group("s.cause_id, c.currency").
		Order("s.cause_id, c.currency").
		Scan(&out).Error
	return out, err
}

func (s *Service) dailyDonations(ctx context.Context, r *Request) ([]Item, error) {
	var out []Item
	err := s.scoped(ctx, models.Donation{}.TableName(), "d", r).
		Select("CAST(DATE(d.completed_at) AS TEXT) AS date, d.currency AS currency, COUNT(*) AS count, COALESCE(SUM(d.amount), 0) AS amount").
		Where("d.state = ?", types.DonationStateCompleted).
		Group("DATE(d.completed_at), d.currency").
		Order("date DESC").
		Scan(&out).Error
	return out, err
}

// recurringVolume is the per-charge amount of live subscriptions, grouped by
// billing frequency.
func (s *Service) recurringVolume(ctx context.Context, r *Request) ([]Item, error) {
	var out []Item
	err := s.scoped(ctx, models.Subscription{}.TableName(), "s", r).
		Select("s.frequency AS label, s.currency AS currency, COUNT(*) AS count, COALESCE(SUM(s.amount), 0) AS amount").
		Where("s.state IN ?", []types.SubscriptionState{types.SubscriptionStateActive, types.SubscriptionStatePastDue}).
		Group("s.frequency, s.currency").
		Order("s.frequency, s.currency").
		Scan(&out).Error
	return out, err
}

func (s *Service) stateCounts(ctx context.Context, table string, r *Request) ([]Item, error) {
	var out []Item
	err := s.scoped(ctx, table, "t", r).
		Select("t.state AS label, COUNT(*) AS count, COALESCE(SUM(t.amount), 0) AS amount").
		Group("t.state").
		Order("t.state").
		Scan(&out).Error
	return out, err
}

func (s *Service) statistic(ctx context.Context, r *Request, id StatisticType) ([]Item, error) {
	switch id {
	case StatisticTypeTotalRaised:
		return s.totalRaised(ctx, r)
	case StatisticTypeRecurringRaised:
		return s.recurringRaised(ctx, r)
	case StatisticTypeDailyDonations:
		return s.dailyDonations(ctx, r)
	case StatisticTypeRecurringVolume:
		return s.recurringVolume(ctx, r)
	case StatisticTypeDonationStates:
		return s.stateCounts(ctx, models.Donation{}.TableName(), r)
	case StatisticTypeSubscriptionStates:
		return s.stateCounts(ctx, models.Subscription{}.TableName(), r)
	default:
		return nil, fmt.Errorf("%w: unknown data item %q", ErrInvalidRequest, id)
	}
}

func validate(r *Request) error {
	if r == nil || len(r.DataItems) == 0 {
		return fmt.Errorf("%w: data_items is required", ErrInvalidRequest)
	}
	for _, f := range r.Filters {
		if f == nil {
			continue
		}
		kind, ok := filterColumns[f.Field]
		if !ok {
			return fmt.Errorf("%w: unsupported filter %q", ErrInvalidRequest, f.Field)
		}
		if err := f.Validate(kind); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	for _, di := range r.DataItems {
		if di == nil {
			return fmt.Errorf("%w: empty data item", ErrInvalidRequest)
		}
	}
	return nil
}

// GetStatistics computes every requested data item concurrently.
func (s *Service) GetStatistics(ctx context.Context, r *Request) (*Response, error) {
	if err := validate(r); err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(r.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []Item], len(r.DataItems))

	for _, item := range r.DataItems {
		wg.Add(1)
		go func(di *DataItem) {
			defer wg.Done()
			res, err := s.statistic(ctx, r, di.ID)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []Item]{Key: di.ID, Value: lo.Ternary(res == nil, []Item{}, res)}
		}(item)
	}
	wg.Wait()
	close(errChan)
	close(resChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	results := make(map[StatisticType][]Item, len(r.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &Response{DataItems: results}, nil
}

var Module = fx.Options(fx.Provide(New))
