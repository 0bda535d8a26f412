package stripe_checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/donations/pkg/types"
)

func exponent(currency string) int32 { return types.CurrencyExponent(currency) }

// ToMinorUnits converts a major-unit amount to the integer Stripe expects.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	shifted := amount.Shift(exponent(currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has too many decimal places for %s", amount, currency)
	}
	if !shifted.IsPositive() {
		return 0, fmt.Errorf("amount %s must be positive", amount)
	}
	return shifted.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -exponent(currency))
}
