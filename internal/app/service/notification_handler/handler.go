package notification_handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/service/gateway"
	eventlog "github.com/fatflowers/donations/internal/app/service/gateway_event_log"
	"github.com/fatflowers/donations/internal/app/service/reconciler"
	"github.com/fatflowers/donations/pkg/logctx"
)

var ErrUnsupportedProvider = errors.New("unsupported webhook provider")

type Reconciler interface {
	Reconcile(ctx context.Context, ev gateway.Event) (reconciler.Outcome, error)
}

type Params struct {
	fx.In

	Decoders   []gateway.WebhookDecoder `group:"webhook_decoders"`
	Reconciler *reconciler.Service
	EventLog   *eventlog.Service
	Logger     *zap.SugaredLogger
}

// NotificationHandler is the webhook ingress: it authenticates and decodes a
// delivery, keeps the raw event in the gateway event log and hands the
// decoded event to the reconciler.
type NotificationHandler struct {
	decoders   map[string]gateway.WebhookDecoder
	reconciler Reconciler
	eventLog   *eventlog.Service
	Logger     *zap.SugaredLogger
}

func NewNotificationHandler(p Params) *NotificationHandler {
	return New(p.Decoders, p.Reconciler, p.EventLog, p.Logger)
}

func New(decoders []gateway.WebhookDecoder, r Reconciler, el *eventlog.Service, log *zap.SugaredLogger) *NotificationHandler {
	h := &NotificationHandler{
		decoders:   make(map[string]gateway.WebhookDecoder, len(decoders)),
		reconciler: r,
		eventLog:   el,
		Logger:     log.Named("webhook"),
	}
	for _, d := range decoders {
		if d != nil {
			h.decoders[d.Provider()] = d
		}
	}
	return h
}

// HandleNotification processes one delivery. Decoding failures wrap
// gateway.ErrInvalidSignature or gateway.ErrInvalidPayload; any other error
// is an infrastructure failure and the delivery should be retried.
func (h *NotificationHandler) HandleNotification(ctx context.Context, provider string, payload []byte, header http.Header) (out reconciler.Outcome, resErr error) {
	lg := logctx.FromCtx(ctx, h.Logger).With("provider", provider)
	dec, ok := h.decoders[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	n, err := dec.Decode(payload, header)
	if err != nil {
		lg.Warnw("webhook rejected", "err", err)
		return "", err
	}
	lg = lg.With("event_id", n.EventID, "event_type", n.EventType)

	entry := eventlog.Entry{Provider: n.Provider, EventID: n.EventID, EventType: n.EventType, Data: payload}
	if n.Event != nil {
		entry.ReferenceID = n.Event.Meta().ReferenceID
	}
	logID := h.eventLog.Received(ctx, entry)
	defer func() {
		result := map[string]any{"outcome": out}
		if n.Event != nil {
			result["event"] = n.Event.Kind()
		}
		h.eventLog.Finish(ctx, logID, result, resErr)
	}()

	if n.Event == nil {
		lg.Debugw("webhook event ignored")
		return reconciler.OutcomeIgnored, nil
	}
	out, resErr = h.reconciler.Reconcile(ctx, n.Event)
	if resErr != nil {
		return "", fmt.Errorf("reconcile %s: %w", n.EventID, resErr)
	}
	lg.Infow("webhook handled", "outcome", out)
	return out, nil
}

var Module = fx.Options(
	fx.Provide(NewNotificationHandler),
)
