// Package precision converts between the decimal.Decimal representation used
// throughout the order manager and the scaled integer amounts a chain client
// accepts on the wire, mirroring the scaling idiom used for compact client
// order IDs elsewhere in this module.
package precision

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrOutOfRange is returned when a scaled amount would not fit in an int64.
type ErrOutOfRange struct {
	Value    decimal.Decimal
	Decimals int
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("value %s at %d decimals overflows int64", e.Value.String(), e.Decimals)
}

// scaleFactor returns 10^decimals as a decimal.
func scaleFactor(decimals int) decimal.Decimal {
	return decimal.NewFromFloat(10).Pow(decimal.NewFromInt(int64(decimals)))
}

// ToChainInt converts a decimal amount to its scaled int64 chain
// representation, rounding to the nearest smallest unit. Returns
// ErrOutOfRange if the scaled value does not fit in an int64.
func ToChainInt(amount decimal.Decimal, decimals int) (int64, error) {
	scaled := amount.Mul(scaleFactor(decimals)).Round(0)

	maxI64 := decimal.NewFromInt(math.MaxInt64)
	minI64 := decimal.NewFromInt(math.MinInt64)
	if scaled.GreaterThan(maxI64) || scaled.LessThan(minI64) {
		return 0, &ErrOutOfRange{Value: amount, Decimals: decimals}
	}

	return scaled.IntPart(), nil
}

// FromChainInt converts a scaled int64 chain amount back to a decimal.
func FromChainInt(amount int64, decimals int) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(scaleFactor(decimals))
}

// SmallestUnit returns the decimal value of one smallest on-chain unit at the
// given precision — the epsilon the fill reducer uses to decide FULL vs.
// PARTIAL.
func SmallestUnit(decimals int) decimal.Decimal {
	return FromChainInt(1, decimals)
}

// RoundTrips reports whether converting amount to a chain int and back at
// the given precision reproduces the same rounded decimal value — the
// property the batch planner relies on before it trusts a computed size.
func RoundTrips(amount decimal.Decimal, decimals int) bool {
	scaledInt, err := ToChainInt(amount, decimals)
	if err != nil {
		return false
	}
	back := FromChainInt(scaledInt, decimals)
	return back.Equal(amount.Round(int32(decimals)))
}
