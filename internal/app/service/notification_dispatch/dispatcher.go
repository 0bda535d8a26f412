package notification_dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/config"
	"github.com/fatflowers/donations/pkg/metrics"
)

// Dispatcher drains the donation event outbox into a Notifier.
type Dispatcher struct {
	repos    *repository.Repositories
	notifier Notifier
	cfg      config.DispatcherConfig
	metrics  *metrics.Business
	log      *zap.SugaredLogger

	done sync.WaitGroup
}

func NewDispatcher(cfg *config.Config, repos *repository.Repositories, n Notifier, m *metrics.Business, log *zap.SugaredLogger) *Dispatcher {
	dc := cfg.Dispatcher
	if dc.PollInterval <= 0 {
		dc.PollInterval = 2 * time.Second
	}
	if dc.BatchSize <= 0 {
		dc.BatchSize = 100
	}
	return &Dispatcher{repos: repos, notifier: n, cfg: dc, metrics: m, log: log.Named("dispatcher")}
}

// NewNotifier picks the HTTP notifier when a webhook URL is configured.
func NewNotifier(cfg *config.Config, log *zap.SugaredLogger) Notifier {
	if cfg.Dispatcher.WebhookURL != "" {
		return NewHTTPNotifier(cfg.Dispatcher.WebhookURL, cfg.Dispatcher.Timeout)
	}
	return NewLogNotifier(log.Named("notifications"))
}

type Result struct {
	Delivered int
	Failed    int
	Abandoned int
}

// RunOnce delivers one batch of pending notifications in creation order.
// After a failure the remaining events of the same record are held back for
// the next run so a receiver never sees a later state first.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	rows, err := d.repos.Outbox.ListPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	blocked := map[string]bool{}
	for _, row := range rows {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if blocked[row.RecordID] {
			continue
		}
		lg := d.log.With("outbox_id", row.ID, "record_id", row.RecordID, "state", row.State)

		if nerr := d.notifier.Notify(ctx, notificationOf(row)); nerr != nil {
			blocked[row.RecordID] = true
			res.Failed++
			abandoned, err := d.repos.Outbox.MarkFailed(ctx, row.ID, nerr, d.cfg.MaxAttempts)
			if err != nil {
				return res, err
			}
			if abandoned {
				res.Abandoned++
				d.metrics.Dispatched("abandoned")
				lg.Errorw("notification abandoned", "attempts", row.Attempts+1, "err", nerr)
				// an abandoned row no longer holds back later events
				blocked[row.RecordID] = false
				continue
			}
			d.metrics.Dispatched("failed")
			lg.Warnw("notification delivery failed", "attempts", row.Attempts+1, "err", nerr)
			continue
		}
		if err := d.repos.Outbox.MarkPublished(ctx, row.ID, time.Now()); err != nil {
			return res, err
		}
		res.Delivered++
		d.metrics.Dispatched("delivered")
	}
	return res, nil
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Warnw("dispatch run failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runDispatcher(lc fx.Lifecycle, cfg *config.Config, d *Dispatcher) {
	if !cfg.Dispatcher.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.done.Add(1)
			go func() {
				defer d.done.Done()
				d.Run(ctx)
			}()
			d.log.Infow("dispatcher started", "interval", d.cfg.PollInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			d.done.Wait()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewNotifier, NewDispatcher),
	fx.Invoke(runDispatcher),
)
