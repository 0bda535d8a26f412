// Package gateway defines the payment gateway contract used by the donation
// orchestrator and the shape of the events the reconciler consumes.
package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/donations/pkg/types"
)

// ChargeRequest describes a one-time checkout.
type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	// ReferenceID is the local record id, passed through verbatim and
	// returned in every webhook about this checkout.
	ReferenceID   string
	CustomerEmail string
	CustomerName  string
	Description   string
	ReturnPath    string
}

// SubscriptionRequest describes a recurring checkout.
type SubscriptionRequest struct {
	ChargeRequest
	Frequency        types.Frequency
	SubscriptionType types.SubscriptionType
}

// Redirect is where the donor must be sent to finish paying.
type Redirect struct {
	URL       string
	SessionID string
}

// Client creates checkout sessions. Calls are single attempt: a failed call is
// returned to the caller, never retried.
type Client interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Redirect, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Redirect, error)
	CancelSubscription(ctx context.Context, externalSubscriptionID string) error
}

// Error wraps a failed gateway call.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("gateway %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }
