package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type DonationState string

const (
	DonationStatePendingPayment   DonationState = "pending_payment"
	DonationStatePaymentInitiated DonationState = "payment_initiated"
	DonationStateCompleted        DonationState = "completed"
	DonationStateFailed           DonationState = "failed"
	DonationStateExpired          DonationState = "expired"
)

// DonationPendingStates are the states a donation may leave through the
// reconciler or the expiry sweep.
var DonationPendingStates = []DonationState{DonationStatePendingPayment, DonationStatePaymentInitiated}

func (s DonationState) IsPending() bool {
	return s == DonationStatePendingPayment || s == DonationStatePaymentInitiated
}

func (s DonationState) IsTerminal() bool {
	return s == DonationStateCompleted || s == DonationStateFailed || s == DonationStateExpired
}

type SubscriptionState string

const (
	SubscriptionStatePendingActivation SubscriptionState = "pending_activation"
	SubscriptionStateActive            SubscriptionState = "active"
	SubscriptionStatePastDue           SubscriptionState = "past_due"
	SubscriptionStateCancelled         SubscriptionState = "cancelled"
)

func (s SubscriptionState) IsTerminal() bool {
	return s == SubscriptionStateCancelled
}

type ChargeState string

const (
	ChargeStateCompleted ChargeState = "completed"
	ChargeStateFailed    ChargeState = "failed"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnually  Frequency = "annually"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
		return true
	}
	return false
}

// SubscriptionType tags a recurring product sharing the gateway account.
type SubscriptionType string

const (
	SubscriptionTypeRecurringDonation SubscriptionType = "recurring_donation"
)

type RecordType string

const (
	RecordTypeDonation     RecordType = "donation"
	RecordTypeSubscription RecordType = "subscription"
	RecordTypeCharge       RecordType = "subscription_charge"
)

// AmountInput keeps the raw text of a client-supplied amount so that
// non-numeric input surfaces as a validation failure instead of a bind error.
// Both JSON numbers and JSON strings are accepted.
type AmountInput string

func (a *AmountInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		*a = AmountInput(strings.TrimSpace(s))
		return nil
	}
	*a = AmountInput(b)
	return nil
}

func (a AmountInput) String() string { return string(a) }
