package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/platform/db/dbtest"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

func newDonation(causeID string, amount int64, state types.DonationState) *models.Donation {
	return &models.Donation{
		ID:       tool.GenerateUUIDV7(),
		CauseID:  causeID,
		Amount:   decimal.NewFromInt(amount),
		Currency: "php",
		State:    state,
	}
}

func TestDonationTransition_AppliesOnce(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	d := newDonation("cause-1", 100, types.DonationStatePendingPayment)
	require.NoError(t, repos.Donations.Create(ctx, d))

	ok, err := repos.Donations.Transition(ctx, d.ID, types.DonationPendingStates, types.DonationStateCompleted,
		map[string]interface{}{"external_reference": "pi_1"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repos.Donations.Transition(ctx, d.ID, types.DonationPendingStates, types.DonationStateFailed, nil)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateCompleted, got.State)
	require.Equal(t, "pi_1", *got.ExternalReference)
}

func TestDonationTransition_ConcurrentWritersSingleWinner(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	d := newDonation("cause-1", 100, types.DonationStatePaymentInitiated)
	require.NoError(t, repos.Donations.Create(ctx, d))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := types.DonationStateCompleted
			if i%2 == 1 {
				to = types.DonationStateFailed
			}
			ok, err := repos.Donations.Transition(ctx, d.ID, types.DonationPendingStates, to, nil)
			require.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)
}

func TestDonationGet_NotFound(t *testing.T) {
	repos := New(dbtest.New(t))
	_, err := repos.Donations.Get(context.Background(), tool.GenerateUUIDV7())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDonationListStalePending(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))

	old := newDonation("c", 100, types.DonationStatePendingPayment)
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	oldDone := newDonation("c", 100, types.DonationStateCompleted)
	oldDone.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	fresh := newDonation("c", 100, types.DonationStatePaymentInitiated)
	settling := newDonation("c", 100, types.DonationStatePaymentInitiated)
	settling.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
	completedAt := time.Now().UTC().Add(-70 * time.Hour)
	settling.AwaitingSettlementAt = &completedAt
	for _, d := range []*models.Donation{old, oldDone, fresh, settling} {
		require.NoError(t, repos.Donations.Create(ctx, d))
	}

	cutoffs := StaleCutoffs{
		Initiated:  time.Now().Add(-24 * time.Hour),
		Settlement: time.Now().Add(-14 * 24 * time.Hour),
	}
	got, err := repos.Donations.ListStalePending(ctx, cutoffs, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, old.ID, got[0].ID)

	ok, err := repos.Donations.ExpireStale(ctx, settling.ID, cutoffs, "payment_timeout")
	require.NoError(t, err)
	require.False(t, ok)

	cutoffs.Settlement = time.Now().Add(-24 * time.Hour)
	got, err = repos.Donations.ListStalePending(ctx, cutoffs, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ok, err = repos.Donations.ExpireStale(ctx, settling.ID, cutoffs, "settlement_timeout")
	require.NoError(t, err)
	require.True(t, ok)
	expired, err := repos.Donations.Get(ctx, settling.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateExpired, expired.State)
	require.Equal(t, "settlement_timeout", *expired.FailureReason)
}

func TestDonationCauseReadModel(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	now := time.Now().UTC()
	for i, amount := range []int64{100, 250, 400} {
		d := newDonation("cause-9", amount, types.DonationStateCompleted)
		at := now.Add(time.Duration(i) * time.Minute)
		d.CompletedAt = &at
		require.NoError(t, repos.Donations.Create(ctx, d))
	}
	require.NoError(t, repos.Donations.Create(ctx, newDonation("cause-9", 999, types.DonationStateFailed)))
	require.NoError(t, repos.Donations.Create(ctx, newDonation("other", 999, types.DonationStateCompleted)))

	list, total, err := repos.Donations.ListCompletedByCause(ctx, "cause-9", 2, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, list, 2)
	require.True(t, list[0].Amount.Equal(decimal.NewFromInt(400)))

	sum, err := repos.Donations.SumCompletedByCause(ctx, "cause-9")
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.NewFromInt(750)), sum.String())

	sum, err = repos.Donations.SumCompletedByCause(ctx, "empty")
	require.NoError(t, err)
	require.True(t, sum.IsZero())
}

func TestDonationList_Filters(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	require.NoError(t, repos.Donations.Create(ctx, newDonation("a", 100, types.DonationStateCompleted)))
	require.NoError(t, repos.Donations.Create(ctx, newDonation("a", 100, types.DonationStateFailed)))
	require.NoError(t, repos.Donations.Create(ctx, newDonation("b", 100, types.DonationStateCompleted)))

	list, total, err := repos.Donations.List(ctx, []*types.CommonFilter{
		{Field: "state", Operator: types.CommonFilterOperatorEq, Values: []any{"completed"}},
		{Field: "cause_id", Operator: types.CommonFilterOperatorIn, Values: []any{"a", "b"}},
	}, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, list, 2)

	_, _, err = repos.Donations.List(ctx, []*types.CommonFilter{
		{Field: "donor_email", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}},
	}, 10, 0)
	require.ErrorIs(t, err, ErrUnsupportedFilter)

	_, _, err = repos.Donations.List(ctx, []*types.CommonFilter{
		{Field: "state", Operator: types.CommonFilterOperatorGt, Values: []any{"completed"}},
	}, 10, 0)
	require.ErrorIs(t, err, ErrUnsupportedFilter)

	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	list, total, err = repos.Donations.List(ctx, []*types.CommonFilter{
		{Field: "created_at", Operator: types.CommonFilterOperatorDateRange, Values: []any{tomorrow.Add(-48 * time.Hour), tomorrow}},
		{Field: "state", Operator: types.CommonFilterOperatorNotEq, Values: []any{"failed"}},
	}, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, list, 2)
}

func TestSubscriptionTransitionAndOwnership(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	s := &models.Subscription{
		ID:               tool.GenerateUUIDV7(),
		UserID:           "user-1",
		CauseID:          "cause-1",
		Amount:           decimal.NewFromInt(500),
		Currency:         "php",
		Frequency:        types.FrequencyMonthly,
		SubscriptionType: types.SubscriptionTypeRecurringDonation,
		State:            types.SubscriptionStatePendingActivation,
	}
	require.NoError(t, repos.Subscriptions.Create(ctx, s))

	_, err := repos.Subscriptions.GetForUser(ctx, s.ID, "user-2")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := repos.Subscriptions.Transition(ctx, s.ID,
		[]types.SubscriptionState{types.SubscriptionStatePendingActivation}, types.SubscriptionStateActive, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repos.Subscriptions.Transition(ctx, s.ID,
		[]types.SubscriptionState{types.SubscriptionStatePendingActivation}, types.SubscriptionStateCancelled, nil)
	require.NoError(t, err)
	require.False(t, ok)

	at := time.Now()
	require.NoError(t, repos.Subscriptions.MarkCancelRequested(ctx, s.ID, at))
	require.NoError(t, repos.Subscriptions.MarkCancelRequested(ctx, s.ID, at.Add(time.Hour)))
	got, err := repos.Subscriptions.GetForUser(ctx, s.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got.CancelRequestedAt)
	require.WithinDuration(t, at, *got.CancelRequestedAt, time.Second)

	list, err := repos.Subscriptions.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestChargeInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	subID := tool.GenerateUUIDV7()
	charge := func() *models.SubscriptionCharge {
		return &models.SubscriptionCharge{
			ID:                tool.GenerateUUIDV7(),
			SubscriptionID:    subID,
			Amount:            decimal.NewFromInt(500),
			Currency:          "php",
			State:             types.ChargeStateCompleted,
			ExternalReference: "in_1",
			OccurredAt:        time.Now().UTC(),
		}
	}

	inserted, err := repos.Charges.InsertIfAbsent(ctx, charge())
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = repos.Charges.InsertIfAbsent(ctx, charge())
	require.NoError(t, err)
	require.False(t, inserted)

	list, err := repos.Charges.ListBySubscription(ctx, subID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOutbox_DedupeAndAbandon(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	id := tool.GenerateUUIDV7()
	ev := OutboxEvent{RecordType: types.RecordTypeDonation, RecordID: id, State: "completed", Payload: map[string]interface{}{"amount": "100"}}

	require.NoError(t, repos.Outbox.Publish(ctx, ev))
	require.NoError(t, repos.Outbox.Publish(ctx, ev))
	pending, err := repos.Outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "donation:"+id+":completed", pending[0].DedupeKey)

	abandoned, err := repos.Outbox.MarkFailed(ctx, pending[0].ID, errors.New("503"), 2)
	require.NoError(t, err)
	require.False(t, abandoned)
	abandoned, err = repos.Outbox.MarkFailed(ctx, pending[0].ID, errors.New("503"), 2)
	require.NoError(t, err)
	require.True(t, abandoned)

	pending, err = repos.Outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.Error(t, repos.Outbox.Publish(ctx, OutboxEvent{RecordType: types.RecordTypeDonation}))
}

func TestTransaction_RollsBackTogether(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	d := newDonation("c", 100, types.DonationStatePendingPayment)
	require.NoError(t, repos.Donations.Create(ctx, d))

	boom := errors.New("boom")
	err := repos.Transaction(ctx, func(tx *Repositories) error {
		ok, err := tx.Donations.Transition(ctx, d.ID, types.DonationPendingStates, types.DonationStateCompleted, nil)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.Outbox.Publish(ctx, OutboxEvent{RecordType: types.RecordTypeDonation, RecordID: d.ID, State: "completed"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStatePendingPayment, got.State)
	pending, err := repos.Outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCauseUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repos := New(dbtest.New(t))
	require.NoError(t, repos.Causes.Upsert(ctx, &models.Cause{
		ID: "cause-1", Title: "Relief", MinimumDonation: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
	}))
	c, err := repos.Causes.Get(ctx, "cause-1")
	require.NoError(t, err)
	require.True(t, c.MinimumDonation.Valid)
	require.True(t, c.MinimumDonation.Decimal.Equal(decimal.NewFromInt(1000)))

	_, err = repos.Causes.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
