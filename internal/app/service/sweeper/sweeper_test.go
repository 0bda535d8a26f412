package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/platform/db/dbtest"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/config"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSweeper(t *testing.T) (*Sweeper, *repository.Repositories) {
	t.Helper()
	repos := repository.New(dbtest.New(t))
	cfg := &config.Config{Sweeper: config.SweeperConfig{PendingTimeout: 24 * time.Hour, BatchSize: 50}}
	s := New(cfg, repos, nil, zap.NewNop().Sugar())
	s.now = func() time.Time { return now }
	return s, repos
}

func donation(t *testing.T, repos *repository.Repositories, state types.DonationState, age time.Duration) string {
	t.Helper()
	d := &models.Donation{
		ID:        tool.GenerateUUIDV7(),
		CauseID:   "cause-1",
		Amount:    decimal.NewFromInt(500),
		Currency:  "php",
		State:     state,
		CreatedAt: now.Add(-age),
	}
	require.NoError(t, repos.Donations.Create(context.Background(), d))
	return d.ID
}

func subscription(t *testing.T, repos *repository.Repositories, state types.SubscriptionState, age time.Duration) string {
	t.Helper()
	s := &models.Subscription{
		ID:               tool.GenerateUUIDV7(),
		UserID:           "u1",
		CauseID:          "cause-1",
		Amount:           decimal.NewFromInt(1000),
		Currency:         "php",
		Frequency:        types.FrequencyMonthly,
		SubscriptionType: types.SubscriptionTypeRecurringDonation,
		State:            state,
		CreatedAt:        now.Add(-age),
	}
	require.NoError(t, repos.Subscriptions.Create(context.Background(), s))
	return s.ID
}

func TestRunOnce_ExpiresOnlyStalePendingRecords(t *testing.T) {
	s, repos := newSweeper(t)
	ctx := context.Background()

	stale := donation(t, repos, types.DonationStatePendingPayment, 25*time.Hour)
	staleInitiated := donation(t, repos, types.DonationStatePaymentInitiated, 48*time.Hour)
	fresh := donation(t, repos, types.DonationStatePendingPayment, time.Hour)
	done := donation(t, repos, types.DonationStateCompleted, 72*time.Hour)
	staleSub := subscription(t, repos, types.SubscriptionStatePendingActivation, 30*time.Hour)
	activeSub := subscription(t, repos, types.SubscriptionStateActive, 30*time.Hour)

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{ExpiredDonations: 2, CancelledSubscriptions: 1}, res)

	for id, want := range map[string]types.DonationState{
		stale:          types.DonationStateExpired,
		staleInitiated: types.DonationStateExpired,
		fresh:          types.DonationStatePendingPayment,
		done:           types.DonationStateCompleted,
	} {
		d, err := repos.Donations.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, d.State, id)
	}

	sub, err := repos.Subscriptions.Get(ctx, staleSub)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStateCancelled, sub.State)
	require.Equal(t, ReasonActivationTimeout, *sub.FailureReason)
	require.NotNil(t, sub.CancelledAt)

	sub, err = repos.Subscriptions.Get(ctx, activeSub)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStateActive, sub.State)

	pending, err := repos.Outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	res, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, res)
}

func TestExpireDonation_LosesToWebhook(t *testing.T) {
	s, repos := newSweeper(t)
	ctx := context.Background()
	id := donation(t, repos, types.DonationStatePendingPayment, 30*time.Hour)
	d, err := repos.Donations.Get(ctx, id)
	require.NoError(t, err)

	// settled after the sweep listed it
	_, err = repos.Donations.Transition(ctx, id, types.DonationPendingStates, types.DonationStateCompleted, nil)
	require.NoError(t, err)

	cutoffs := repository.StaleCutoffs{Initiated: now.Add(-24 * time.Hour), Settlement: now.Add(-14 * 24 * time.Hour)}
	applied, err := s.expireDonation(ctx, d, cutoffs)
	require.NoError(t, err)
	require.False(t, applied)

	d, err = repos.Donations.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateCompleted, d.State)
}

func awaitSettlement(t *testing.T, repos *repository.Repositories, id string, since time.Duration) {
	t.Helper()
	ok, err := repos.Donations.Transition(context.Background(), id, types.DonationPendingStates, types.DonationStatePaymentInitiated,
		map[string]interface{}{"awaiting_settlement_at": now.Add(-since)})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunOnce_DelayedSettlementGetsLongerTimeout(t *testing.T) {
	s, repos := newSweeper(t)
	ctx := context.Background()

	settling := donation(t, repos, types.DonationStatePaymentInitiated, 5*24*time.Hour)
	awaitSettlement(t, repos, settling, 5*24*time.Hour-time.Hour)
	abandoned := donation(t, repos, types.DonationStatePaymentInitiated, 20*24*time.Hour)
	awaitSettlement(t, repos, abandoned, 15*24*time.Hour)

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.ExpiredDonations)

	d, err := repos.Donations.Get(ctx, settling)
	require.NoError(t, err)
	require.Equal(t, types.DonationStatePaymentInitiated, d.State)

	d, err = repos.Donations.Get(ctx, abandoned)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateExpired, d.State)
	require.Equal(t, ReasonSettlementTimeout, *d.FailureReason)
}

func TestExpireDonation_SkipsRowThatStartedSettling(t *testing.T) {
	s, repos := newSweeper(t)
	ctx := context.Background()
	id := donation(t, repos, types.DonationStatePaymentInitiated, 30*time.Hour)
	d, err := repos.Donations.Get(ctx, id)
	require.NoError(t, err)

	// checkout completed unpaid after the sweep listed it
	awaitSettlement(t, repos, id, time.Minute)

	cutoffs := repository.StaleCutoffs{Initiated: now.Add(-24 * time.Hour), Settlement: now.Add(-14 * 24 * time.Hour)}
	applied, err := s.expireDonation(ctx, d, cutoffs)
	require.NoError(t, err)
	require.False(t, applied)

	d, err = repos.Donations.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.DonationStatePaymentInitiated, d.State)
}
