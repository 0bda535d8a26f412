// Package sweeper moves records that never heard back from the gateway out
// of their pending state.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/models"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/config"
	"github.com/fatflowers/donations/pkg/metrics"
	"github.com/fatflowers/donations/pkg/types"
)

const (
	ReasonPaymentTimeout    = "payment_timeout"
	ReasonSettlementTimeout = "settlement_timeout"
	ReasonActivationTimeout = "activation_timeout"
)

type Sweeper struct {
	repos   *repository.Repositories
	cfg     config.SweeperConfig
	metrics *metrics.Business
	log     *zap.SugaredLogger
	now     func() time.Time

	done sync.WaitGroup
}

func New(cfg *config.Config, repos *repository.Repositories, m *metrics.Business, log *zap.SugaredLogger) *Sweeper {
	sc := cfg.Sweeper
	if sc.Interval <= 0 {
		sc.Interval = 5 * time.Minute
	}
	if sc.PendingTimeout <= 0 {
		sc.PendingTimeout = 24 * time.Hour
	}
	if sc.SettlementTimeout < sc.PendingTimeout {
		sc.SettlementTimeout = 14 * 24 * time.Hour
	}
	if sc.BatchSize <= 0 {
		sc.BatchSize = 200
	}
	return &Sweeper{repos: repos, cfg: sc, metrics: m, log: log.Named("sweeper"), now: time.Now}
}

type Result struct {
	ExpiredDonations       int
	CancelledSubscriptions int
}

// RunOnce expires donations and cancels subscriptions that have been pending
// longer than the configured timeout. Donations whose checkout completed with
// a delayed payment method get the settlement timeout instead. A record
// settled by a webhook between the listing and the update is left alone.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	cutoff := s.now().UTC().Add(-s.cfg.PendingTimeout)
	cutoffs := repository.StaleCutoffs{Initiated: cutoff, Settlement: s.now().UTC().Add(-s.cfg.SettlementTimeout)}

	donations, err := s.repos.Donations.ListStalePending(ctx, cutoffs, s.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list stale donations: %w", err)
	}
	for i := range donations {
		ok, err := s.expireDonation(ctx, &donations[i], cutoffs)
		if err != nil {
			return res, err
		}
		if ok {
			res.ExpiredDonations++
		}
	}

	subs, err := s.repos.Subscriptions.ListStalePending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list stale subscriptions: %w", err)
	}
	for i := range subs {
		ok, err := s.cancelSubscription(ctx, &subs[i])
		if err != nil {
			return res, err
		}
		if ok {
			res.CancelledSubscriptions++
		}
	}

	s.metrics.Swept(string(types.RecordTypeDonation), res.ExpiredDonations)
	s.metrics.Swept(string(types.RecordTypeSubscription), res.CancelledSubscriptions)
	if res.ExpiredDonations > 0 || res.CancelledSubscriptions > 0 {
		s.log.Infow("sweep finished", "expired_donations", res.ExpiredDonations,
			"cancelled_subscriptions", res.CancelledSubscriptions, "cutoff", cutoff)
	}
	return res, nil
}

func (s *Sweeper) expireDonation(ctx context.Context, d *models.Donation, cutoffs repository.StaleCutoffs) (bool, error) {
	reason := ReasonPaymentTimeout
	if d.AwaitingSettlementAt != nil {
		reason = ReasonSettlementTimeout
	}
	var applied bool
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		applied, err = tx.Donations.ExpireStale(ctx, d.ID, cutoffs, reason)
		if err != nil || !applied {
			return err
		}
		return tx.Outbox.Publish(ctx, repository.DonationEvent(d, types.DonationStateExpired, reason))
	})
	if err != nil {
		return false, fmt.Errorf("expire donation %s: %w", d.ID, err)
	}
	return applied, nil
}

func (s *Sweeper) cancelSubscription(ctx context.Context, sub *models.Subscription) (bool, error) {
	var applied bool
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		applied, err = tx.Subscriptions.Transition(ctx, sub.ID,
			[]types.SubscriptionState{types.SubscriptionStatePendingActivation}, types.SubscriptionStateCancelled,
			map[string]interface{}{"failure_reason": ReasonActivationTimeout, "cancelled_at": s.now().UTC()})
		if err != nil || !applied {
			return err
		}
		return tx.Outbox.Publish(ctx, repository.SubscriptionEvent(sub, types.SubscriptionStateCancelled, ReasonActivationTimeout, ""))
	})
	if err != nil {
		return false, fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
	}
	return applied, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warnw("sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runSweeper(lc fx.Lifecycle, cfg *config.Config, s *Sweeper) {
	if !cfg.Sweeper.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.done.Add(1)
			go func() {
				defer s.done.Done()
				s.Run(ctx)
			}()
			s.log.Infow("sweeper started", "interval", s.cfg.Interval,
				"pending_timeout", s.cfg.PendingTimeout, "settlement_timeout", s.cfg.SettlementTimeout)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			s.done.Wait()
			return nil
		},
	})
}

// Module provides the Sweeper without starting it; WorkerModule also runs it
// in the background.
var Module = fx.Options(fx.Provide(New))

var WorkerModule = fx.Options(Module, fx.Invoke(runSweeper))
