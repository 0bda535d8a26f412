package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/platform/db/dbtest"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

var completedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	donation := func(cause string, amount int64, state types.DonationState) {
		d := &models.Donation{ID: tool.GenerateUUIDV7(), CauseID: cause, Amount: decimal.NewFromInt(amount), Currency: "php", State: state}
		if state == types.DonationStateCompleted {
			d.CompletedAt = &completedAt
		}
		require.NoError(t, db.Create(d).Error)
	}
	donation("c1", 1000, types.DonationStateCompleted)
	donation("c1", 2500, types.DonationStateCompleted)
	donation("c2", 700, types.DonationStateCompleted)
	donation("c1", 9000, types.DonationStateFailed)
	donation("c2", 300, types.DonationStatePendingPayment)

	subscription := func(cause string, amount int64, state types.SubscriptionState) string {
		s := &models.Subscription{
			ID: tool.GenerateUUIDV7(), UserID: "u1", CauseID: cause, Amount: decimal.NewFromInt(amount), Currency: "php",
			Frequency: types.FrequencyMonthly, SubscriptionType: types.SubscriptionTypeRecurringDonation, State: state,
		}
		require.NoError(t, db.Create(s).Error)
		return s.ID
	}
	active := subscription("c1", 500, types.SubscriptionStateActive)
	subscription("c1", 800, types.SubscriptionStatePastDue)
	subscription("c2", 600, types.SubscriptionStateCancelled)

	for i, state := range []types.ChargeState{types.ChargeStateCompleted, types.ChargeStateCompleted, types.ChargeStateFailed} {
		require.NoError(t, db.Create(&models.SubscriptionCharge{
			ID: tool.GenerateUUIDV7(), SubscriptionID: active, Amount: decimal.NewFromInt(500), Currency: "php",
			State: state, ExternalReference: "in_" + string(rune('a'+i)), OccurredAt: completedAt,
		}).Error)
	}
}

func items(ids ...StatisticType) []*DataItem {
	out := make([]*DataItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, &DataItem{ID: id})
	}
	return out
}

func TestGetStatistics(t *testing.T) {
	db := dbtest.New(t)
	seed(t, db)
	svc := New(db)

	res, err := svc.GetStatistics(context.Background(), &Request{DataItems: items(
		StatisticTypeTotalRaised, StatisticTypeRecurringRaised, StatisticTypeRecurringVolume,
		StatisticTypeDonationStates, StatisticTypeSubscriptionStates, StatisticTypeDailyDonations,
	)})
	require.NoError(t, err)

	raised := res.DataItems[StatisticTypeTotalRaised]
	require.Len(t, raised, 2)
	require.Equal(t, "c1", raised[0].Label)
	require.Equal(t, int64(2), raised[0].Count)
	require.True(t, raised[0].Amount.Equal(decimal.NewFromInt(3500)))
	require.True(t, raised[1].Amount.Equal(decimal.NewFromInt(700)))

	recurring := res.DataItems[StatisticTypeRecurringRaised]
	require.Len(t, recurring, 1)
	require.Equal(t, int64(2), recurring[0].Count)
	require.True(t, recurring[0].Amount.Equal(decimal.NewFromInt(1000)))

	volume := res.DataItems[StatisticTypeRecurringVolume]
	require.Len(t, volume, 1)
	require.Equal(t, string(types.FrequencyMonthly), volume[0].Label)
	require.Equal(t, int64(2), volume[0].Count)
	require.True(t, volume[0].Amount.Equal(decimal.NewFromInt(1300)))

	counts := map[string]int64{}
	for _, it := range res.DataItems[StatisticTypeDonationStates] {
		counts[it.Label] = it.Count
	}
	require.Equal(t, map[string]int64{"completed": 3, "failed": 1, "pending_payment": 1}, counts)
	require.Len(t, res.DataItems[StatisticTypeSubscriptionStates], 3)

	daily := res.DataItems[StatisticTypeDailyDonations]
	require.Len(t, daily, 1)
	require.Equal(t, int64(3), daily[0].Count)
}

func TestGetStatistics_Filters(t *testing.T) {
	db := dbtest.New(t)
	seed(t, db)
	svc := New(db)

	res, err := svc.GetStatistics(context.Background(), &Request{
		Filters:   []*types.CommonFilter{{Field: "cause_id", Operator: types.CommonFilterOperatorEq, Values: []any{"c2"}}},
		DataItems: items(StatisticTypeTotalRaised, StatisticTypeRecurringRaised),
	})
	require.NoError(t, err)
	require.Len(t, res.DataItems[StatisticTypeTotalRaised], 1)
	require.True(t, res.DataItems[StatisticTypeTotalRaised][0].Amount.Equal(decimal.NewFromInt(700)))
	require.NotNil(t, res.DataItems[StatisticTypeRecurringRaised])
	require.Empty(t, res.DataItems[StatisticTypeRecurringRaised])
}

func TestGetStatistics_RejectsBadRequests(t *testing.T) {
	svc := New(dbtest.New(t))
	ctx := context.Background()

	_, err := svc.GetStatistics(ctx, &Request{})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.GetStatistics(ctx, &Request{DataItems: items("renewal_rate")})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.GetStatistics(ctx, &Request{
		Filters:   []*types.CommonFilter{{Field: "donor_email", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
		DataItems: items(StatisticTypeTotalRaised),
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}
