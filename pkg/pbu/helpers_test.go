package pbu

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGenerateDeterministicOrderID(t *testing.T) {
	price := decimal.NewFromFloat(100.5)
	side := "BUY"
	decimals := 2
	botKey := "btc-usdc-0"

	oid1 := GenerateDeterministicOrderID(botKey, price, side, decimals)
	oid2 := GenerateDeterministicOrderID(botKey, price, side, decimals)

	assert.Equal(t, oid1, oid2, "deterministic OID should be stable across calls")
	assert.Contains(t, oid1, "10050")
	assert.Contains(t, oid1, "B")

	oid3 := GenerateDeterministicOrderID(botKey, decimal.NewFromInt(101), side, decimals)
	assert.NotEqual(t, oid1, oid3, "different price must give different OID")

	oid4 := GenerateDeterministicOrderID(botKey, price, "SELL", decimals)
	assert.NotEqual(t, oid1, oid4, "different side must give different OID")

	oid5 := GenerateDeterministicOrderID("btc-usdc-1", price, side, decimals)
	assert.NotEqual(t, oid1, oid5, "different bot key must give different OID")
}

func TestParseCompactOrderIDRoundTrip(t *testing.T) {
	price := decimal.NewFromFloat(100.5)
	side := "SELL"
	decimals := 2
	botKey := "btc-usdc-0"

	oid := GenerateDeterministicOrderID(botKey, price, side, decimals)
	p, s, ok := ParseCompactOrderID(oid, decimals)

	assert.True(t, ok)
	assert.True(t, price.Equal(p))
	assert.Equal(t, side, s)
}

func TestParseCompactOrderIDStripsVenuePrefix(t *testing.T) {
	price := decimal.NewFromFloat(42.25)
	decimals := 4
	oid := GenerateDeterministicOrderID("eth-usdc-0", price, "BUY", decimals)

	prefixed := "venue-" + oid
	p, s, ok := ParseCompactOrderID(prefixed, decimals)

	assert.True(t, ok)
	assert.True(t, price.Equal(p))
	assert.Equal(t, "BUY", s)
}

func TestParseCompactOrderIDRejectsMalformed(t *testing.T) {
	_, _, ok := ParseCompactOrderID("not-a-valid-id", 2)
	assert.False(t, ok)
}
