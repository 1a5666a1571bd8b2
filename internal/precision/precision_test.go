package precision

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToChainIntAndBack(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
	}{
		{"100.50", 2},
		{"0.00000001", 8},
		{"1234.5", 6},
		{"0", 4},
	}

	for _, c := range cases {
		amount, err := decimal.NewFromString(c.amount)
		assert.NoError(t, err)

		scaled, err := ToChainInt(amount, c.decimals)
		assert.NoError(t, err)

		back := FromChainInt(scaled, c.decimals)
		assert.True(t, amount.Equal(back), "round trip mismatch for %s at %d decimals: got %s", c.amount, c.decimals, back)
	}
}

func TestToChainIntRoundsToNearestUnit(t *testing.T) {
	amount := decimal.NewFromFloat(1.005)
	scaled, err := ToChainInt(amount, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(101), scaled)
}

func TestToChainIntOutOfRange(t *testing.T) {
	huge := decimal.NewFromFloat(math.MaxFloat64)
	_, err := ToChainInt(huge, 8)
	assert.Error(t, err)
	var rangeErr *ErrOutOfRange
	assert.ErrorAs(t, err, &rangeErr)
}

func TestRoundTrips(t *testing.T) {
	assert.True(t, RoundTrips(decimal.NewFromFloat(10.25), 2))
	assert.False(t, RoundTrips(decimal.NewFromFloat(math.MaxFloat64), 8))
}
