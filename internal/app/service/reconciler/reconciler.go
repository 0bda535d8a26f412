// Package reconciler applies gateway events to donation and subscription
// records. It is the only code path that moves a record to completed or
// active, and it is safe to call concurrently with redelivered or reordered
// events.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/service/gateway"
	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/logctx"
	"github.com/fatflowers/donations/pkg/metrics"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

type Outcome string

const (
	// OutcomeApplied: the event changed state or recorded a charge.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate: the record already reflects the event.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeConflict: the record already reached a different outcome, which is kept.
	OutcomeConflict Outcome = "conflict"
	// OutcomeOrphaned: no record matches the event's reference id.
	OutcomeOrphaned Outcome = "orphaned"
	OutcomeIgnored  Outcome = "ignored"
)

type Service struct {
	repos   *repository.Repositories
	metrics *metrics.Business
	log     *zap.SugaredLogger
}

func NewService(repos *repository.Repositories, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{repos: repos, metrics: m, log: log.Named("reconciler")}
}

// Reconcile applies ev. Conflicts and orphans are logged and reported through
// the outcome; the error is reserved for storage failures, where the gateway
// should redeliver.
func (s *Service) Reconcile(ctx context.Context, ev gateway.Event) (Outcome, error) {
	if ev == nil {
		return OutcomeIgnored, nil
	}
	meta := ev.Meta()
	lg := logctx.FromCtx(ctx, s.log).With("event", ev.Kind(), "event_id", meta.EventID, "reference_id", meta.ReferenceID)

	var (
		out Outcome
		err error
	)
	switch e := ev.(type) {
	case gateway.ChargeSucceeded:
		out, err = s.settleDonation(ctx, lg, e.EventMeta, types.DonationStateCompleted, "")
	case gateway.ChargeAwaitingSettlement:
		out, err = s.awaitSettlement(ctx, lg, e)
	case gateway.ChargeFailed:
		out, err = s.settleDonation(ctx, lg, e.EventMeta, types.DonationStateFailed, e.Reason)
	case gateway.SubscriptionActivated:
		out, err = s.activate(ctx, lg, e)
	case gateway.SubscriptionActivationFailed:
		out, err = s.failActivation(ctx, lg, e)
	case gateway.SubscriptionChargeSucceeded:
		out, err = s.recordCharge(ctx, lg, e.EventMeta, e.Amount, e.Currency, types.ChargeStateCompleted, "")
	case gateway.SubscriptionChargeFailed:
		out, err = s.recordCharge(ctx, lg, e.EventMeta, e.Amount, e.Currency, types.ChargeStateFailed, e.Reason)
	case gateway.SubscriptionCancelled:
		out, err = s.cancel(ctx, lg, e)
	default:
		out = OutcomeIgnored
	}
	if err != nil {
		lg.Errorw("reconcile failed", "err", err)
		s.metrics.WebhookReconciled(ev.Kind(), "error")
		return "", err
	}
	s.metrics.WebhookReconciled(ev.Kind(), string(out))
	return out, nil
}

func (s *Service) loadDonation(ctx context.Context, ref string) (*models.Donation, error) {
	if !tool.IsUUID(ref) {
		return nil, repository.ErrNotFound
	}
	return s.repos.Donations.Get(ctx, ref)
}

func (s *Service) loadSubscription(ctx context.Context, ref string) (*models.Subscription, error) {
	if !tool.IsUUID(ref) {
		return nil, repository.ErrNotFound
	}
	return s.repos.Subscriptions.Get(ctx, ref)
}

func orphaned(lg *zap.SugaredLogger, err error) (Outcome, error) {
	if errors.Is(err, repository.ErrNotFound) {
		lg.Warnw("orphaned gateway event: no matching record")
		return OutcomeOrphaned, nil
	}
	return "", err
}

// settleDonation moves a pending donation to completed or failed.
func (s *Service) settleDonation(ctx context.Context, lg *zap.SugaredLogger, meta gateway.EventMeta, target types.DonationState, reason string) (Outcome, error) {
	d, err := s.loadDonation(ctx, meta.ReferenceID)
	if err != nil {
		return orphaned(lg, err)
	}

	set := map[string]interface{}{}
	if meta.ExternalID != "" {
		set["external_reference"] = meta.ExternalID
	}
	if target == types.DonationStateCompleted {
		set["completed_at"] = eventTime(meta)
	} else if reason != "" {
		set["failure_reason"] = reason
	}

	var applied bool
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		applied, err = tx.Donations.Transition(ctx, d.ID, types.DonationPendingStates, target, set)
		if err != nil || !applied {
			return err
		}
		return tx.Outbox.Publish(ctx, repository.DonationEvent(d, target, reason))
	})
	if err != nil {
		return "", fmt.Errorf("transition donation %s: %w", d.ID, err)
	}
	if applied {
		lg.Infow("donation settled", "donation_id", d.ID, "state", target)
		return OutcomeApplied, nil
	}

	current, err := s.repos.Donations.Get(ctx, d.ID)
	if err != nil {
		return "", err
	}
	// an expired checkout is the failure arriving by another route
	if current.State == target || (target == types.DonationStateFailed && current.State == types.DonationStateExpired) {
		lg.Debugw("donation already settled", "donation_id", d.ID, "state", current.State)
		return OutcomeDuplicate, nil
	}
	lg.Warnw("reconciliation conflict: donation already settled differently",
		"donation_id", d.ID, "state", current.State, "event_state", target)
	return OutcomeConflict, nil
}

// awaitSettlement marks a pending donation whose checkout completed before the
// money moved, so the sweeper waits for the delayed outcome. No outbox event:
// the donation is still pending.
func (s *Service) awaitSettlement(ctx context.Context, lg *zap.SugaredLogger, e gateway.ChargeAwaitingSettlement) (Outcome, error) {
	d, err := s.loadDonation(ctx, e.ReferenceID)
	if err != nil {
		return orphaned(lg, err)
	}
	if d.AwaitingSettlementAt != nil && d.State.IsPending() {
		return OutcomeDuplicate, nil
	}
	set := map[string]interface{}{"awaiting_settlement_at": eventTime(e.EventMeta)}
	if e.ExternalID != "" {
		set["external_reference"] = e.ExternalID
	}
	applied, err := s.repos.Donations.Transition(ctx, d.ID, types.DonationPendingStates, types.DonationStatePaymentInitiated, set)
	if err != nil {
		return "", fmt.Errorf("mark donation %s awaiting settlement: %w", d.ID, err)
	}
	if applied {
		lg.Infow("donation awaiting settlement", "donation_id", d.ID)
		return OutcomeApplied, nil
	}

	current, err := s.repos.Donations.Get(ctx, d.ID)
	if err != nil {
		return "", err
	}
	// the settlement outcome overtook its own checkout completion
	if current.State.IsTerminal() && current.State != types.DonationStateExpired {
		lg.Debugw("donation already settled", "donation_id", d.ID, "state", current.State)
		return OutcomeDuplicate, nil
	}
	lg.Warnw("reconciliation conflict: checkout completed for an expired donation", "donation_id", d.ID, "state", current.State)
	return OutcomeConflict, nil
}

func (s *Service) activate(ctx context.Context, lg *zap.SugaredLogger, e gateway.SubscriptionActivated) (Outcome, error) {
	sub, err := s.loadSubscription(ctx, e.ReferenceID)
	if err != nil {
		return orphaned(lg, err)
	}
	applied, err := s.transitionSubscription(ctx, sub,
		[]types.SubscriptionState{types.SubscriptionStatePendingActivation}, types.SubscriptionStateActive,
		map[string]interface{}{"external_subscription_id": e.ExternalID, "activated_at": eventTime(e.EventMeta)}, "", e.EventID)
	if err != nil || applied {
		return appliedOrErr(lg, err, "subscription activated", sub.ID)
	}

	current, err := s.repos.Subscriptions.Get(ctx, sub.ID)
	if err != nil {
		return "", err
	}
	if current.State == types.SubscriptionStateActive || current.State == types.SubscriptionStatePastDue {
		return OutcomeDuplicate, nil
	}
	lg.Warnw("reconciliation conflict: activation for a closed subscription", "subscription_id", sub.ID, "state", current.State)
	return OutcomeConflict, nil
}

func (s *Service) failActivation(ctx context.Context, lg *zap.SugaredLogger, e gateway.SubscriptionActivationFailed) (Outcome, error) {
	sub, err := s.loadSubscription(ctx, e.ReferenceID)
	if err != nil {
		return orphaned(lg, err)
	}
	applied, err := s.transitionSubscription(ctx, sub,
		[]types.SubscriptionState{types.SubscriptionStatePendingActivation}, types.SubscriptionStateCancelled,
		map[string]interface{}{"failure_reason": e.Reason, "cancelled_at": eventTime(e.EventMeta)}, e.Reason, e.EventID)
	if err != nil || applied {
		return appliedOrErr(lg, err, "subscription activation failed", sub.ID)
	}

	current, err := s.repos.Subscriptions.Get(ctx, sub.ID)
	if err != nil {
		return "", err
	}
	if current.State == types.SubscriptionStateCancelled {
		return OutcomeDuplicate, nil
	}
	lg.Warnw("reconciliation conflict: activation failure for a live subscription", "subscription_id", sub.ID, "state", current.State)
	return OutcomeConflict, nil
}

func (s *Service) cancel(ctx context.Context, lg *zap.SugaredLogger, e gateway.SubscriptionCancelled) (Outcome, error) {
	sub, err := s.loadSubscription(ctx, e.ReferenceID)
	if err != nil {
		return orphaned(lg, err)
	}
	applied, err := s.transitionSubscription(ctx, sub,
		[]types.SubscriptionState{types.SubscriptionStateActive, types.SubscriptionStatePastDue}, types.SubscriptionStateCancelled,
		map[string]interface{}{"cancelled_at": eventTime(e.EventMeta)}, "", e.EventID)
	if err != nil || applied {
		return appliedOrErr(lg, err, "subscription cancelled", sub.ID)
	}

	current, err := s.repos.Subscriptions.Get(ctx, sub.ID)
	if err != nil {
		return "", err
	}
	if current.State == types.SubscriptionStateCancelled {
		return OutcomeDuplicate, nil
	}
	lg.Warnw("reconciliation conflict: cancellation before activation", "subscription_id", sub.ID, "state", current.State)
	return OutcomeConflict, nil
}

// recordCharge appends one charge-history row and moves the subscription
// between active and past_due. Paid invoices are keyed by invoice id; each
// failed attempt on an invoice is keyed by invoice and event id, so retries
// and the eventual payment each leave their own row.
func (s *Service) recordCharge(ctx context.Context, lg *zap.SugaredLogger, meta gateway.EventMeta, amount decimal.Decimal, currency string, state types.ChargeState, reason string) (Outcome, error) {
	sub, err := s.loadSubscription(ctx, meta.ReferenceID)
	if err != nil {
		return orphaned(lg, err)
	}
	ref := meta.ExternalID
	if state == types.ChargeStateFailed {
		ref = meta.ExternalID + ":" + meta.EventID
	}
	if currency == "" {
		currency = sub.Currency
	}
	charge := &models.SubscriptionCharge{
		ID:                tool.GenerateUUIDV7(),
		SubscriptionID:    sub.ID,
		Amount:            amount,
		Currency:          currency,
		State:             state,
		ExternalReference: ref,
		OccurredAt:        eventTime(meta),
	}
	if reason != "" {
		charge.FailureReason = &reason
	}

	var inserted bool
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		inserted, err = tx.Charges.InsertIfAbsent(ctx, charge)
		if err != nil || !inserted {
			return err
		}
		if err := tx.Outbox.Publish(ctx, repository.ChargeEvent(sub, charge)); err != nil {
			return err
		}
		from, to := types.SubscriptionStatePastDue, types.SubscriptionStateActive
		if state == types.ChargeStateFailed {
			from, to = types.SubscriptionStateActive, types.SubscriptionStatePastDue
		}
		moved, err := tx.Subscriptions.Transition(ctx, sub.ID, []types.SubscriptionState{from}, to, nil)
		if err != nil || !moved {
			return err
		}
		lg.Infow("subscription state changed by charge", "subscription_id", sub.ID, "state", to)
		return tx.Outbox.Publish(ctx, repository.SubscriptionEvent(sub, to, reason, meta.EventID))
	})
	if err != nil {
		return "", fmt.Errorf("record charge for subscription %s: %w", sub.ID, err)
	}
	if !inserted {
		return OutcomeDuplicate, nil
	}
	switch sub.State {
	case types.SubscriptionStatePendingActivation:
		lg.Infow("charge recorded before activation", "subscription_id", sub.ID)
	case types.SubscriptionStateCancelled:
		lg.Warnw("charge recorded for a cancelled subscription", "subscription_id", sub.ID, "charge_state", state)
	}
	return OutcomeApplied, nil
}

func (s *Service) transitionSubscription(ctx context.Context, sub *models.Subscription, from []types.SubscriptionState, to types.SubscriptionState, set map[string]interface{}, reason, trigger string) (bool, error) {
	var applied bool
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		applied, err = tx.Subscriptions.Transition(ctx, sub.ID, from, to, set)
		if err != nil || !applied {
			return err
		}
		return tx.Outbox.Publish(ctx, repository.SubscriptionEvent(sub, to, reason, trigger))
	})
	if err != nil {
		return false, fmt.Errorf("transition subscription %s: %w", sub.ID, err)
	}
	return applied, nil
}

func appliedOrErr(lg *zap.SugaredLogger, err error, msg, id string) (Outcome, error) {
	if err != nil {
		return "", err
	}
	lg.Infow(msg, "subscription_id", id)
	return OutcomeApplied, nil
}

func eventTime(m gateway.EventMeta) time.Time {
	if m.OccurredAt.IsZero() {
		return time.Now().UTC()
	}
	return m.OccurredAt.UTC()
}

var Module = fx.Options(fx.Provide(NewService))
