package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits carried by every monetary value.
const MoneyScale = 4

// MaxAmount bounds a single line amount.
var MaxAmount = decimal.RequireFromString("1000000000000")

// ParseMoney parses s and rejects values with more than MoneyScale fractional digits.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateScale(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateScale rejects amounts that would need rounding to fit MoneyScale.
func ValidateScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: %s", ErrAmountScale, d.String())
	}
	return nil
}

// ValidateAmount checks a line amount: strictly positive, bounded, at most 4 decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrInvalidAmount, MaxAmount)
	}
	return ValidateScale(amount)
}

// ValidateExchangeRate checks that rate is strictly positive.
func ValidateExchangeRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return ErrInvalidExchangeRate
	}
	return nil
}

// RoundMoney rounds a derived amount (for example amount x rate) to MoneyScale.
// Input amounts are never rounded; they are rejected by ValidateScale instead.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// BaseAmount converts an amount in the line currency to the company base currency.
func BaseAmount(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(rate))
}
