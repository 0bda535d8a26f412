package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("card_declined")
	var err error = &Error{Op: "create_charge", Err: cause}

	require.ErrorIs(t, err, cause)
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, "gateway create_charge: card_declined", err.Error())
}

func TestEvent_MetaAndKind(t *testing.T) {
	var ev Event = SubscriptionChargeFailed{EventMeta: EventMeta{EventID: "evt_1", ReferenceID: "ref"}, Reason: "card_declined"}
	require.Equal(t, "ref", ev.Meta().ReferenceID)
	require.Equal(t, "subscription_charge_failed", ev.Kind())
}
