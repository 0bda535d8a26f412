package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrencyExponent(t *testing.T) {
	require.Equal(t, int32(2), CurrencyExponent("php"))
	require.Equal(t, int32(2), CurrencyExponent("USD"))
	require.Equal(t, int32(0), CurrencyExponent("jpy"))
	require.Equal(t, int32(0), CurrencyExponent("KRW"))
}
