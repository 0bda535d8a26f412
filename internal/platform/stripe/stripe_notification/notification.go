package stripe_notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/fatflowers/donations/internal/app/service/gateway"
	"github.com/fatflowers/donations/internal/platform/stripe/stripe_checkout"
)

const Provider = "stripe"

const signatureHeader = "Stripe-Signature"

// Decoder verifies Stripe webhook signatures and maps Stripe events onto the
// gateway event union.
type Decoder struct {
	secret    string
	tolerance time.Duration
}

func New(secret string, tolerance time.Duration) (*Decoder, error) {
	if secret == "" {
		return nil, errors.New("stripe webhook secret is empty")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Decoder{secret: secret, tolerance: tolerance}, nil
}

func (d *Decoder) Provider() string { return Provider }

func (d *Decoder) Decode(payload []byte, header http.Header) (*gateway.Notification, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header.Get(signatureHeader), d.secret, webhook.ConstructEventOptions{
		Tolerance:                d.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}
	n := &gateway.Notification{Provider: Provider, EventID: ev.ID, EventType: string(ev.Type)}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", gateway.ErrInvalidPayload, ev.ID)
	}
	n.Event, err = mapEvent(ev.ID, ev.Type, time.Unix(ev.Created, 0).UTC(), ev.Data.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", gateway.ErrInvalidPayload, ev.Type, ev.ID, err)
	}
	return n, nil
}

// mapEvent returns a nil event for types that carry nothing to reconcile.
// Sessions, invoices and subscriptions created outside this service share the
// Stripe account and arrive without a reference id; they are still mapped so
// the reconciler reports them as orphaned and the delivery is acknowledged.
func mapEvent(id string, typ stripe.EventType, at time.Time, raw json.RawMessage) (gateway.Event, error) {
	switch typ {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		var s checkoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s.event(id, typ, at)
	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		var inv invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, err
		}
		return inv.event(id, typ, at)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, err
		}
		return gateway.SubscriptionCancelled{EventMeta: gateway.EventMeta{
			EventID: id, ReferenceID: sub.Metadata[stripe_checkout.MetadataReferenceID], ExternalID: sub.ID, OccurredAt: at,
		}}, nil
	}
	return nil, nil
}

// expandable accepts either an object id or an expanded object with an id.
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandable(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	PaymentIntent     expandable        `json:"payment_intent"`
	Subscription      expandable        `json:"subscription"`
}

func (s checkoutSession) referenceID() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata[stripe_checkout.MetadataReferenceID]
}

func (s checkoutSession) event(id string, typ stripe.EventType, at time.Time) (gateway.Event, error) {
	meta := gateway.EventMeta{EventID: id, ReferenceID: s.referenceID(), ExternalID: s.ID, OccurredAt: at}
	recurring := s.Mode == string(stripe.CheckoutSessionModeSubscription)

	switch typ {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		if recurring {
			if s.Subscription == "" {
				return nil, errors.New("subscription checkout completed without a subscription")
			}
			meta.ExternalID = string(s.Subscription)
			return gateway.SubscriptionActivated{EventMeta: meta}, nil
		}
		if s.PaymentIntent != "" {
			meta.ExternalID = string(s.PaymentIntent)
		}
		// delayed payment methods complete the session before the money moves
		if s.PaymentStatus != string(stripe.CheckoutSessionPaymentStatusPaid) {
			return gateway.ChargeAwaitingSettlement{EventMeta: meta}, nil
		}
		return gateway.ChargeSucceeded{EventMeta: meta}, nil
	}

	reason := "checkout_expired"
	if typ == stripe.EventTypeCheckoutSessionAsyncPaymentFailed {
		reason = "async_payment_failed"
	}
	if recurring {
		return gateway.SubscriptionActivationFailed{EventMeta: meta, Reason: reason}, nil
	}
	return gateway.ChargeFailed{EventMeta: meta, Reason: reason}, nil
}

type subscriptionDetails struct {
	Metadata     map[string]string `json:"metadata"`
	Subscription expandable        `json:"subscription"`
}

type invoice struct {
	ID                  string               `json:"id"`
	Currency            string               `json:"currency"`
	AmountPaid          int64                `json:"amount_paid"`
	AmountDue           int64                `json:"amount_due"`
	Subscription        expandable           `json:"subscription"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
}

// details covers both the legacy top-level and the newer parent layout.
func (inv invoice) details() (ref, subscriptionID string) {
	subscriptionID = string(inv.Subscription)
	for _, d := range []*subscriptionDetails{inv.SubscriptionDetails, inv.parentDetails()} {
		if d == nil {
			continue
		}
		if ref == "" {
			ref = d.Metadata[stripe_checkout.MetadataReferenceID]
		}
		if subscriptionID == "" {
			subscriptionID = string(d.Subscription)
		}
	}
	return ref, subscriptionID
}

func (inv invoice) parentDetails() *subscriptionDetails {
	if inv.Parent == nil {
		return nil
	}
	return inv.Parent.SubscriptionDetails
}

func (inv invoice) event(id string, typ stripe.EventType, at time.Time) (gateway.Event, error) {
	ref, subID := inv.details()
	if subID == "" {
		// one-off invoices are not ours
		return nil, nil
	}
	currency := strings.ToLower(inv.Currency)
	meta := gateway.EventMeta{EventID: id, ReferenceID: ref, ExternalID: inv.ID, OccurredAt: at}
	if typ == stripe.EventTypeInvoicePaid {
		return gateway.SubscriptionChargeSucceeded{
			EventMeta:      meta,
			SubscriptionID: subID,
			Amount:         stripe_checkout.FromMinorUnits(inv.AmountPaid, currency),
			Currency:       currency,
		}, nil
	}
	return gateway.SubscriptionChargeFailed{
		EventMeta:      meta,
		SubscriptionID: subID,
		Amount:         stripe_checkout.FromMinorUnits(inv.AmountDue, currency),
		Currency:       currency,
		Reason:         "payment_failed",
	}, nil
}

type subscription struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}
