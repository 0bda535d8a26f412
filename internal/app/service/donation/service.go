// Package donation is the client-facing side of the donation flow: it
// validates intents, creates pending records and hands the donor off to the
// gateway. It never marks a record completed or active; that only happens
// when the reconciler applies a gateway event.
package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/service/gateway"
	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/config"
	"github.com/fatflowers/donations/pkg/logctx"
	"github.com/fatflowers/donations/pkg/metrics"
	"github.com/fatflowers/donations/pkg/tool"
	"github.com/fatflowers/donations/pkg/types"
)

// FailureReasonGateway marks records failed because checkout creation failed.
const FailureReasonGateway = "gateway_error"

type Service struct {
	cfg     *config.Config
	repos   *repository.Repositories
	gw      gateway.Client
	metrics *metrics.Business
	log     *zap.SugaredLogger
	checker *validator.Validate
}

func NewService(cfg *config.Config, repos *repository.Repositories, gw gateway.Client, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, repos: repos, gw: gw, metrics: m, log: log, checker: validator.New()}
}

// InitiateResult is what the donor's client needs to continue: the id to
// show later and the gateway page to open now.
type InitiateResult struct {
	Kind           types.RecordType `json:"kind"`
	DonationID     string           `json:"donation_id,omitempty"`
	SubscriptionID string           `json:"subscription_id,omitempty"`
	RedirectURL    string           `json:"redirect_url"`
}

// InitiateDonation validates req, creates exactly one pending record and asks
// the gateway for a checkout. Errors are *ValidationError,
// ErrAuthenticationRequired, *gateway.Error or infrastructure failures.
func (s *Service) InitiateDonation(ctx context.Context, req InitiateRequest, who types.Identity) (*InitiateResult, error) {
	kind := string(types.RecordTypeDonation)
	if req.Recurring() {
		kind = string(types.RecordTypeSubscription)
	}
	v, err := s.validate(ctx, req, who)
	if err != nil {
		s.metrics.DonationInitiated(kind, outcomeOf(err))
		return nil, err
	}
	var res *InitiateResult
	if v.req.Recurring() {
		res, err = s.initiateSubscription(ctx, v, who)
	} else {
		res, err = s.initiateOneTime(ctx, v, who)
	}
	s.metrics.DonationInitiated(kind, outcomeOf(err))
	return res, err
}

func (s *Service) initiateOneTime(ctx context.Context, v *validated, who types.Identity) (*InitiateResult, error) {
	lg := logctx.FromCtx(ctx, s.log)
	d := &models.Donation{
		ID:          tool.GenerateUUIDV7(),
		CauseID:     v.cause.ID,
		Amount:      v.amount,
		Currency:    s.cfg.Payment.Currency,
		DonorName:   nonEmpty(v.req.DonorName),
		DonorEmail:  nonEmpty(v.req.DonorEmail),
		IsAnonymous: v.req.IsAnonymous,
		Message:     nonEmpty(v.req.Message),
		State:       types.DonationStatePendingPayment,
	}
	if who.Authenticated() {
		d.UserID = lo.ToPtr(who.UserID)
	}
	if err := s.repos.Donations.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create donation: %w", err)
	}

	started := time.Now()
	redirect, err := s.gw.CreateCharge(ctx, gateway.ChargeRequest{
		Amount:        d.Amount,
		Currency:      d.Currency,
		ReferenceID:   d.ID,
		CustomerEmail: v.req.DonorEmail,
		CustomerName:  v.req.DonorName,
		Description:   description(v.cause),
		ReturnPath:    v.req.ReturnPath,
	})
	s.metrics.GatewayCall("create_charge", outcomeOf(err), metrics.MillisecondsSince(started))
	if err != nil {
		lg.Errorw("gateway rejected charge", "donation_id", d.ID, "err", err)
		s.failDonation(ctx, d)
		return nil, asGatewayError("create_charge", err)
	}

	applied, err := s.repos.Donations.Transition(ctx, d.ID,
		[]types.DonationState{types.DonationStatePendingPayment}, types.DonationStatePaymentInitiated,
		map[string]interface{}{"gateway_session_id": redirect.SessionID})
	if err != nil {
		// the checkout exists and the webhook can still settle the record
		lg.Errorw("failed to mark donation payment_initiated", "donation_id", d.ID, "err", err)
	} else if !applied {
		lg.Infow("donation settled before redirect was recorded", "donation_id", d.ID)
	}
	lg.Infow("donation initiated", "donation_id", d.ID, "cause_id", d.CauseID, "amount", d.Amount.String())
	return &InitiateResult{Kind: types.RecordTypeDonation, DonationID: d.ID, RedirectURL: redirect.URL}, nil
}

func (s *Service) initiateSubscription(ctx context.Context, v *validated, who types.Identity) (*InitiateResult, error) {
	lg := logctx.FromCtx(ctx, s.log)
	sub := &models.Subscription{
		ID:               tool.GenerateUUIDV7(),
		UserID:           who.UserID,
		CauseID:          v.cause.ID,
		Amount:           v.amount,
		Currency:         s.cfg.Payment.Currency,
		Frequency:        v.req.Frequency,
		SubscriptionType: v.req.SubscriptionType,
		DonorName:        nonEmpty(v.req.DonorName),
		DonorEmail:       nonEmpty(v.req.DonorEmail),
		IsAnonymous:      v.req.IsAnonymous,
		Message:          nonEmpty(v.req.Message),
		State:            types.SubscriptionStatePendingActivation,
	}
	if err := s.repos.Subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	started := time.Now()
	redirect, err := s.gw.CreateSubscription(ctx, gateway.SubscriptionRequest{
		ChargeRequest: gateway.ChargeRequest{
			Amount:        sub.Amount,
			Currency:      sub.Currency,
			ReferenceID:   sub.ID,
			CustomerEmail: v.req.DonorEmail,
			CustomerName:  v.req.DonorName,
			Description:   description(v.cause),
			ReturnPath:    v.req.ReturnPath,
		},
		Frequency:        sub.Frequency,
		SubscriptionType: sub.SubscriptionType,
	})
	s.metrics.GatewayCall("create_subscription", outcomeOf(err), metrics.MillisecondsSince(started))
	if err != nil {
		lg.Errorw("gateway rejected subscription", "subscription_id", sub.ID, "err", err)
		s.failSubscription(ctx, sub)
		return nil, asGatewayError("create_subscription", err)
	}

	if err := s.repos.Subscriptions.SetGatewaySession(ctx, sub.ID, redirect.SessionID); err != nil {
		lg.Errorw("failed to record checkout session", "subscription_id", sub.ID, "err", err)
	}
	lg.Infow("subscription initiated", "subscription_id", sub.ID, "cause_id", sub.CauseID,
		"amount", sub.Amount.String(), "frequency", sub.Frequency)
	return &InitiateResult{Kind: types.RecordTypeSubscription, SubscriptionID: sub.ID, RedirectURL: redirect.URL}, nil
}

// failDonation closes a donation whose checkout could not be created, so it
// never lingers in pending_payment.
func (s *Service) failDonation(ctx context.Context, d *models.Donation) {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		applied, err := tx.Donations.Transition(ctx, d.ID,
			[]types.DonationState{types.DonationStatePendingPayment}, types.DonationStateFailed,
			map[string]interface{}{"failure_reason": FailureReasonGateway})
		if err != nil || !applied {
			return err
		}
		return tx.Outbox.Publish(ctx, repository.DonationEvent(d, types.DonationStateFailed, FailureReasonGateway))
	})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to mark donation failed", "donation_id", d.ID, "err", err)
	}
}

func (s *Service) failSubscription(ctx context.Context, sub *models.Subscription) {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		applied, err := tx.Subscriptions.Transition(ctx, sub.ID,
			[]types.SubscriptionState{types.SubscriptionStatePendingActivation}, types.SubscriptionStateCancelled,
			map[string]interface{}{"failure_reason": FailureReasonGateway, "cancelled_at": time.Now().UTC()})
		if err != nil || !applied {
			return err
		}
		return tx.Outbox.Publish(ctx, repository.SubscriptionEvent(sub, types.SubscriptionStateCancelled, FailureReasonGateway, ""))
	})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to cancel subscription", "subscription_id", sub.ID, "err", err)
	}
}

// CancelSubscription asks the gateway to stop future charges. The record
// moves to cancelled when the gateway confirms via webhook.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string, who types.Identity) (*SubscriptionView, error) {
	if !who.Authenticated() {
		return nil, ErrAuthenticationRequired
	}
	if !tool.IsUUID(subscriptionID) {
		return nil, repository.ErrNotFound
	}
	sub, err := s.repos.Subscriptions.GetForUser(ctx, subscriptionID, who.UserID)
	if err != nil {
		return nil, err
	}
	if sub.State != types.SubscriptionStateActive && sub.State != types.SubscriptionStatePastDue {
		return nil, invalid(ReasonNotCancellable, fmt.Sprintf("subscription is %s", sub.State))
	}
	if sub.ExternalSubscriptionID == nil || *sub.ExternalSubscriptionID == "" {
		return nil, invalid(ReasonNotCancellable, "subscription has no gateway agreement")
	}

	started := time.Now()
	err = s.gw.CancelSubscription(ctx, *sub.ExternalSubscriptionID)
	s.metrics.GatewayCall("cancel_subscription", outcomeOf(err), metrics.MillisecondsSince(started))
	if err != nil {
		return nil, asGatewayError("cancel_subscription", err)
	}

	now := time.Now().UTC()
	if err := s.repos.Subscriptions.MarkCancelRequested(ctx, sub.ID, now); err != nil {
		return nil, fmt.Errorf("mark cancel requested: %w", err)
	}
	if sub.CancelRequestedAt == nil {
		sub.CancelRequestedAt = &now
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription cancel requested", "subscription_id", sub.ID)
	view := newSubscriptionView(sub)
	return &view, nil
}

func description(c *models.Cause) string {
	if c.Title == "" {
		return "Donation"
	}
	return "Donation to " + c.Title
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return lo.ToPtr(s)
}

func asGatewayError(op string, err error) error {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &gateway.Error{Op: op, Err: err}
}

func outcomeOf(err error) string {
	var ve *ValidationError
	var gwErr *gateway.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, ErrAuthenticationRequired):
		return "auth_required"
	case errors.As(err, &gwErr):
		return "gateway_error"
	}
	return "error"
}
