package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/donations/internal/app/api/server"
	"github.com/fatflowers/donations/internal/app/service/donation"
	"github.com/fatflowers/donations/internal/app/service/gateway"
	eventlog "github.com/fatflowers/donations/internal/app/service/gateway_event_log"
	notificationdispatch "github.com/fatflowers/donations/internal/app/service/notification_dispatch"
	notificationhandler "github.com/fatflowers/donations/internal/app/service/notification_handler"
	"github.com/fatflowers/donations/internal/app/service/reconciler"
	"github.com/fatflowers/donations/internal/app/service/statistics"
	"github.com/fatflowers/donations/internal/app/service/sweeper"
	"github.com/fatflowers/donations/internal/platform/db"
	"github.com/fatflowers/donations/internal/platform/stripe/stripe_checkout"
	"github.com/fatflowers/donations/internal/platform/stripe/stripe_notification"
	"github.com/fatflowers/donations/internal/repository"
	"github.com/fatflowers/donations/pkg/config"
	"github.com/fatflowers/donations/pkg/logger"
	"github.com/fatflowers/donations/pkg/metrics"
	"github.com/fatflowers/donations/pkg/observability"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

func newStripeClient(cfg *config.Config) (gateway.Client, error) {
	return stripe_checkout.New(stripe_checkout.Options{
		SecretKey:     cfg.Stripe.SecretKey,
		Currency:      cfg.Payment.Currency,
		ReturnBaseURL: cfg.Payment.ReturnBaseURL,
		CancelPath:    cfg.Payment.CancelPath,
	})
}

func newStripeDecoder(cfg *config.Config) (*stripe_notification.Decoder, error) {
	return stripe_notification.New(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance)
}

// CoreModule is what every command needs: config, logging, the database and
// the repositories on top of it.
var CoreModule = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	repository.Module,
	metrics.Module,
)

// GatewayModule binds Stripe as the payment gateway and webhook source.
var GatewayModule = fx.Options(
	fx.Provide(
		newStripeClient,
		fx.Annotate(
			newStripeDecoder,
			fx.As(new(gateway.WebhookDecoder)),
			fx.ResultTags(`group:"webhook_decoders"`),
		),
	),
)

var Module = fx.Options(
	CoreModule,
	observability.Module,
	GatewayModule,
	eventlog.Module,
	reconciler.Module,
	donation.Module,
	notificationhandler.Module,
	notificationdispatch.Module,
	sweeper.WorkerModule,
	statistics.Module,
	server.Module,
)
