// Package units converts between human decimal strings and integer
// base-unit amounts at a fixed token precision. Amounts that end up in
// a transaction never pass through a float.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when an input cannot be parsed as a
// non-negative decimal number.
var ErrInvalidAmount = errors.New("invalid amount")

const MaxDecimals = 36

// ToBaseUnits parses a human decimal string into base units at the given
// precision. Fractional digits beyond the precision are truncated toward
// zero, never rounded up; truncated reports whether that happened so the
// caller can log it.
func ToBaseUnits(s string, decimals uint8) (amount *big.Int, truncated bool, err error) {
	if decimals > MaxDecimals {
		return nil, false, fmt.Errorf("%w: precision %d out of range", ErrInvalidAmount, decimals)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, false, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	shifted := d.Shift(int32(decimals))
	floored := shifted.Floor()
	return floored.BigInt(), !shifted.Equal(floored), nil
}

// ToHuman formats a base-unit amount as a decimal string at the given
// precision. Trailing fractional zeros are dropped.
func ToHuman(x *big.Int, decimals uint8) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -int32(decimals)).String()
}

// ClampMin returns x, raised to min when smaller. Used for the profit
// threshold: a configured value below one base unit would otherwise
// round to zero and pass every cycle.
func ClampMin(x, min *big.Int) *big.Int {
	if x.Cmp(min) < 0 {
		return new(big.Int).Set(min)
	}
	return new(big.Int).Set(x)
}
