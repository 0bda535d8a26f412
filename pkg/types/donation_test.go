package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountInput_AcceptsNumbersAndStrings(t *testing.T) {
	var body struct {
		Amount AmountInput `json:"amount"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"amount": 2500}`), &body))
	require.Equal(t, AmountInput("2500"), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": " 12.50 "}`), &body))
	require.Equal(t, AmountInput("12.50"), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "abc"}`), &body))
	require.Equal(t, AmountInput("abc"), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": null}`), &body))
	require.Equal(t, AmountInput(""), body.Amount)
}

func TestStates(t *testing.T) {
	require.True(t, DonationStatePendingPayment.IsPending())
	require.True(t, DonationStatePaymentInitiated.IsPending())
	require.False(t, DonationStateCompleted.IsPending())
	for _, s := range []DonationState{DonationStateCompleted, DonationStateFailed, DonationStateExpired} {
		require.True(t, s.IsTerminal(), s)
	}
	require.True(t, SubscriptionStateCancelled.IsTerminal())
	require.False(t, SubscriptionStatePastDue.IsTerminal())
	require.True(t, FrequencyQuarterly.Valid())
	require.False(t, Frequency("daily").Valid())
}
