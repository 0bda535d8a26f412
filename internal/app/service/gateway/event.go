package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a webhook notification decoded into one of the concrete types
// below. The set is closed; the reconciler switches on the concrete type.
type Event interface {
	Meta() EventMeta
	Kind() string
	sealed()
}

// EventMeta is common to every event.
type EventMeta struct {
	// EventID is the gateway's id for this delivery, stable across retries.
	EventID string
	// ReferenceID is the local record id supplied when the checkout was created.
	ReferenceID string
	// ExternalID is the gateway transaction, subscription or invoice id.
	ExternalID string
	OccurredAt time.Time
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) sealed()           {}

type ChargeSucceeded struct{ EventMeta }

// ChargeAwaitingSettlement is a completed checkout whose payment method
// settles later; the outcome arrives as a separate ChargeSucceeded or
// ChargeFailed.
type ChargeAwaitingSettlement struct{ EventMeta }

type ChargeFailed struct {
	EventMeta
	Reason string
}

type SubscriptionActivated struct{ EventMeta }

type SubscriptionActivationFailed struct {
	EventMeta
	Reason string
}

// SubscriptionChargeSucceeded is one paid recurring invoice. ExternalID is the
// invoice id; SubscriptionID is the gateway subscription.
type SubscriptionChargeSucceeded struct {
	EventMeta
	SubscriptionID string
	Amount         decimal.Decimal
	Currency       string
}

type SubscriptionChargeFailed struct {
	EventMeta
	SubscriptionID string
	Amount         decimal.Decimal
	Currency       string
	Reason         string
}

type SubscriptionCancelled struct{ EventMeta }

func (ChargeSucceeded) Kind() string              { return "charge_succeeded" }
func (ChargeAwaitingSettlement) Kind() string     { return "charge_awaiting_settlement" }
func (ChargeFailed) Kind() string                 { return "charge_failed" }
func (SubscriptionActivated) Kind() string        { return "subscription_activated" }
func (SubscriptionActivationFailed) Kind() string { return "subscription_activation_failed" }
func (SubscriptionChargeSucceeded) Kind() string  { return "subscription_charge_succeeded" }
func (SubscriptionChargeFailed) Kind() string     { return "subscription_charge_failed" }
func (SubscriptionCancelled) Kind() string        { return "subscription_cancelled" }
