// Package pbu provides small conversion and identifier helpers shared across
// the precision, order store, and batch planner packages.
package pbu

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// GenerateDeterministicOrderID derives a stable client order ID from a bot
// key, a grid slot price, and a side. Because it is a pure function of
// (botKey, price, side) rather than wall-clock time, placing the same slot
// twice (e.g. after a crash-restart before the chain ack arrived) always
// produces the same ID, which is what lets the reconciler recognize a
// resubmission as the same logical order instead of minting a duplicate.
func GenerateDeterministicOrderID(botKey string, price decimal.Decimal, side string, priceDecimals int) string {
	priceInt := price.Mul(decimal.NewFromFloat(10).Pow(decimal.NewFromInt(int64(priceDecimals)))).Round(0).IntPart()

	sideCode := "B"
	if side == "SELL" {
		sideCode = "S"
	}

	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", botKey, priceInt, sideCode)))
	checksum := binary.BigEndian.Uint32(h[:4])

	return fmt.Sprintf("%d_%s_%08x", priceInt, sideCode, checksum)
}

// ParseCompactOrderID reconstructs price and side from a deterministic client
// order ID, reversing GenerateDeterministicOrderID's encoding.
func ParseCompactOrderID(clientOID string, priceDecimals int) (decimal.Decimal, string, bool) {
	oid := clientOID
	if idx := strings.LastIndex(oid, "-"); idx >= 0 {
		// Strip any venue prefix of the form "prefix-<id>" the caller added.
		oid = oid[idx+1:]
	}

	parts := strings.Split(oid, "_")
	if len(parts) != 3 {
		return decimal.Zero, "", false
	}

	priceInt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return decimal.Zero, "", false
	}

	price := decimal.NewFromInt(priceInt).Div(decimal.NewFromFloat(10).Pow(decimal.NewFromInt(int64(priceDecimals))))

	side := "BUY"
	if parts[1] == "S" {
		side = "SELL"
	}

	return price, side, true
}
