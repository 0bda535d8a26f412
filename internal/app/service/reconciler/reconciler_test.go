package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fatflowers/donations/internal/app/service/gateway"
	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/platform/db/dbtest"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

type fixture struct {
	svc   *Service
	repos *repository.Repositories
	logs  *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	repos := repository.New(dbtest.New(t))
	return &fixture{svc: NewService(repos, nil, zap.New(core).Sugar()), repos: repos, logs: logs}
}

func (f *fixture) donation(t *testing.T, state types.DonationState) *models.Donation {
	t.Helper()
	d := &models.Donation{
		ID:       tool.GenerateUUIDV7(),
		CauseID:  "cause-1",
		Amount:   decimal.NewFromInt(2500),
		Currency: "php",
		State:    state,
	}
	require.NoError(t, f.repos.Donations.Create(context.Background(), d))
	return d
}

func (f *fixture) subscription(t *testing.T, state types.SubscriptionState) *models.Subscription {
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
	}
	require.NoError(t, f.repos.Subscriptions.Create(context.Background(), s))
	return s
}

func (f *fixture) outbox(t *testing.T) []models.DonationEventOutbox {
	t.Helper()
	rows, err := f.repos.Outbox.ListPending(context.Background(), 100)
	require.NoError(t, err)
	return rows
}

func meta(eventID, ref, external string) gateway.EventMeta {
	return gateway.EventMeta{EventID: eventID, ReferenceID: ref, ExternalID: external, OccurredAt: time.Now().UTC().Truncate(time.Second)}
}

func TestReconcile_ChargeSucceededTwiceNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.donation(t, types.DonationStatePaymentInitiated)
	ev := gateway.ChargeSucceeded{EventMeta: meta("evt_1", d.ID, "pi_1")}

	out, err := f.svc.Reconcile(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)
	first, err := f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateCompleted, first.State)
	require.Equal(t, "pi_1", *first.ExternalReference)
	require.NotNil(t, first.CompletedAt)

	redelivered := ev
	redelivered.OccurredAt = ev.OccurredAt.Add(time.Hour)
	out, err = f.svc.Reconcile(ctx, redelivered)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)

	second, err := f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, first.CompletedAt.Equal(*second.CompletedAt))
	require.Len(t, f.outbox(t), 1)
}

func TestReconcile_LateFailureDoesNotRegressCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.donation(t, types.DonationStatePendingPayment)

	out, err := f.svc.Reconcile(ctx, gateway.ChargeSucceeded{EventMeta: meta("evt_1", d.ID, "pi_1")})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	out, err = f.svc.Reconcile(ctx, gateway.ChargeFailed{EventMeta: meta("evt_2", d.ID, "pi_1"), Reason: "card_declined"})
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, out)

	got, err := f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateCompleted, got.State)
	require.Nil(t, got.FailureReason)
	require.Equal(t, 1, f.logs.FilterMessageSnippet("reconciliation conflict").Len())
}

func TestReconcile_SuccessAfterFailureIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.donation(t, types.DonationStatePaymentInitiated)

	_, err := f.svc.Reconcile(ctx, gateway.ChargeFailed{EventMeta: meta("evt_1", d.ID, "cs_1"), Reason: "async_payment_failed"})
	require.NoError(t, err)

	out, err := f.svc.Reconcile(ctx, gateway.ChargeSucceeded{EventMeta: meta("evt_2", d.ID, "pi_9")})
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, out)

	got, err := f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateFailed, got.State)
	require.Equal(t, "async_payment_failed", *got.FailureReason)
	require.Nil(t, got.CompletedAt)

	entries := f.logs.FilterMessageSnippet("reconciliation conflict").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Len(t, f.outbox(t), 1)
}

func TestReconcile_OrphanedEventsAreAcknowledged(t *testing.T) {
	f := newFixture(t)
	for _, ref := range []string{tool.GenerateUUIDV7(), "not-a-uuid", ""} {
		out, err := f.svc.Reconcile(context.Background(), gateway.ChargeSucceeded{EventMeta: meta("evt_x", ref, "pi_x")})
		require.NoError(t, err)
		require.Equal(t, OutcomeOrphaned, out)
	}
	out, err := f.svc.Reconcile(context.Background(), gateway.SubscriptionCancelled{EventMeta: meta("evt_y", tool.GenerateUUIDV7(), "sub_x")})
	require.NoError(t, err)
	require.Equal(t, OutcomeOrphaned, out)
	require.Equal(t, 4, f.logs.FilterMessageSnippet("orphaned").FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestReconcile_NilEventIgnored(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, out)
}

func TestReconcile_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	f := newFixture(t)
	d := f.donation(t, types.DonationStatePaymentInitiated)

	results := make(chan Outcome, 12)
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ev gateway.Event = gateway.ChargeSucceeded{EventMeta: meta("evt_ok", d.ID, "pi_1")}
			if i%3 == 0 {
				ev = gateway.ChargeFailed{EventMeta: meta("evt_fail", d.ID, "pi_1"), Reason: "card_declined"}
			}
			out, err := f.svc.Reconcile(context.Background(), ev)
			if err != nil {
				t.Errorf("reconcile: %v", err)
			}
			results <- out
		}(i)
	}
	wg.Wait()
	close(results)

	applied := 0
	for out := range results {
		if out == OutcomeApplied {
			applied++
		}
	}
	require.Equal(t, 1, applied)
	require.Len(t, f.outbox(t), 1)
}

func TestReconcile_SubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, types.SubscriptionStatePendingActivation)
	state := func() types.SubscriptionState {
		got, err := f.repos.Subscriptions.Get(ctx, sub.ID)
		require.NoError(t, err)
		return got.State
	}
	reconcile := func(ev gateway.Event) Outcome {
		out, err := f.svc.Reconcile(ctx, ev)
		require.NoError(t, err)
		return out
	}
	amount := decimal.NewFromInt(1000)

	require.Equal(t, OutcomeApplied, reconcile(gateway.SubscriptionActivated{EventMeta: meta("evt_1", sub.ID, "sub_9")}))
	require.Equal(t, types.SubscriptionStateActive, state())
	require.Equal(t, OutcomeDuplicate, reconcile(gateway.SubscriptionActivated{EventMeta: meta("evt_1", sub.ID, "sub_9")}))

	got, err := f.repos.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, "sub_9", *got.ExternalSubscriptionID)
	require.NotNil(t, got.ActivatedAt)

	require.Equal(t, OutcomeApplied, reconcile(gateway.SubscriptionChargeSucceeded{
		EventMeta: meta("evt_2", sub.ID, "in_1"), SubscriptionID: "sub_9", Amount: amount, Currency: "php"}))
	require.Equal(t, OutcomeDuplicate, reconcile(gateway.SubscriptionChargeSucceeded{
		EventMeta: meta("evt_2", sub.ID, "in_1"), SubscriptionID: "sub_9", Amount: amount, Currency: "php"}))
	require.Equal(t, types.SubscriptionStateActive, state())

	require.Equal(t, OutcomeApplied, reconcile(gateway.SubscriptionChargeFailed{
		EventMeta: meta("evt_3", sub.ID, "in_2"), SubscriptionID: "sub_9", Amount: amount, Reason: "payment_failed"}))
	require.Equal(t, types.SubscriptionStatePastDue, state())
	require.Equal(t, OutcomeApplied, reconcile(gateway.SubscriptionChargeFailed{
		EventMeta: meta("evt_4", sub.ID, "in_2"), SubscriptionID: "sub_9", Amount: amount, Reason: "payment_failed"}))
	require.Equal(t, types.SubscriptionStatePastDue, state())

	require.Equal(t, OutcomeApplied, reconcile(gateway.SubscriptionChargeSucceeded{
		EventMeta: meta("evt_5", sub.ID, "in_2"), SubscriptionID: "sub_9", Amount: amount, Currency: "php"}))
	require.Equal(t, types.SubscriptionStateActive, state())

	charges, err := f.repos.Charges.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, charges, 4)
	for _, c := range charges {
		require.Equal(t, sub.ID, c.SubscriptionID)
	}

	require.Equal(t, OutcomeApplied, reconcile(gateway.SubscriptionCancelled{EventMeta: meta("evt_6", sub.ID, "sub_9")}))
	require.Equal(t, types.SubscriptionStateCancelled, state())
	require.Equal(t, OutcomeDuplicate, reconcile(gateway.SubscriptionCancelled{EventMeta: meta("evt_6", sub.ID, "sub_9")}))

	// activated, charge x4, past_due, active, cancelled
	require.Len(t, f.outbox(t), 8)
}

func TestReconcile_ActivationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, types.SubscriptionStatePendingActivation)

	out, err := f.svc.Reconcile(ctx, gateway.SubscriptionActivationFailed{EventMeta: meta("evt_1", sub.ID, "cs_1"), Reason: "checkout_expired"})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	out, err = f.svc.Reconcile(ctx, gateway.SubscriptionActivated{EventMeta: meta("evt_2", sub.ID, "sub_1")})
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, out)

	got, err := f.repos.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStateCancelled, got.State)
	require.Nil(t, got.ExternalSubscriptionID)
}

func TestReconcile_CancelBeforeActivationIsConflict(t *testing.T) {
	f := newFixture(t)
	sub := f.subscription(t, types.SubscriptionStatePendingActivation)
	out, err := f.svc.Reconcile(context.Background(), gateway.SubscriptionCancelled{EventMeta: meta("evt_1", sub.ID, "sub_1")})
	require.NoError(t, err)
	require.Equal(t, OutcomeConflict, out)
}

func TestReconcile_ChargeBeforeActivationKeepsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, types.SubscriptionStatePendingActivation)

	out, err := f.svc.Reconcile(ctx, gateway.SubscriptionChargeSucceeded{
		EventMeta: meta("evt_1", sub.ID, "in_1"), SubscriptionID: "sub_1", Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	got, err := f.repos.Subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatePendingActivation, got.State)

	charges, err := f.repos.Charges.ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	require.Equal(t, "php", charges[0].Currency)
}

func TestReconcile_DelayedSettlementCompletesAfterPendingTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.donation(t, types.DonationStatePaymentInitiated)

	completed := meta("evt_1", d.ID, "pi_1")
	completed.OccurredAt = completed.OccurredAt.Add(-72 * time.Hour)
	out, err := f.svc.Reconcile(ctx, gateway.ChargeAwaitingSettlement{EventMeta: completed})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	got, err := f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStatePaymentInitiated, got.State)
	require.NotNil(t, got.AwaitingSettlementAt)
	require.True(t, completed.OccurredAt.Equal(*got.AwaitingSettlementAt))
	require.Empty(t, f.outbox(t))

	out, err = f.svc.Reconcile(ctx, gateway.ChargeAwaitingSettlement{EventMeta: completed})
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)

	// three days later the bank transfer clears
	out, err = f.svc.Reconcile(ctx, gateway.ChargeSucceeded{EventMeta: meta("evt_2", d.ID, "pi_1")})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)
	got, err = f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateCompleted, got.State)
	require.Len(t, f.outbox(t), 1)
}

func TestReconcile_SettlementMarkerAfterOutcomeIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.donation(t, types.DonationStateCompleted)

	out, err := f.svc.Reconcile(ctx, gateway.ChargeAwaitingSettlement{EventMeta: meta("evt_1", d.ID, "pi_1")})
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)

	got, err := f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Nil(t, got.AwaitingSettlementAt)
}

func TestReconcile_FailureForExpiredDonationIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.donation(t, types.DonationStateExpired)

	out, err := f.svc.Reconcile(ctx, gateway.ChargeFailed{EventMeta: meta("evt_1", d.ID, "cs_1"), Reason: "checkout_expired"})
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)
	require.Zero(t, f.logs.FilterMessageSnippet("reconciliation conflict").Len())

	got, err := f.repos.Donations.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, types.DonationStateExpired, got.State)
	require.Empty(t, f.outbox(t))
}
