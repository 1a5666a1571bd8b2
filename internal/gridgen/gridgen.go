// Package gridgen builds a deterministic grid of price levels and
// weight-distributed sizes from a bot's configuration, the way
// internal/trading/grid built a geometric ladder around a reference price.
package gridgen

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"gridmm/internal/core"
)

// Config is the full input contract for one grid generation or regeneration.
type Config struct {
	RefPrice            decimal.Decimal
	MinPrice            decimal.Decimal // resolved literal; "Nx" multiplier forms are resolved by the caller
	MaxPrice            decimal.Decimal
	IncrementPercent    decimal.Decimal // e.g. 1 means 1%
	TargetSpreadPercent decimal.Decimal

	WeightBuy  float64
	WeightSell float64

	FundsBuy  decimal.Decimal
	FundsSell decimal.Decimal

	ActiveOrdersBuy  int
	ActiveOrdersSell int

	// MinOrderSize aborts the grid (all sizes zero) when a computed size
	// would still fall below it after one retry with a flat distribution.
	MinOrderSize decimal.Decimal
}

// ResolveBound resolves a min/max price bound given either a literal positive
// decimal string or the "Nx" multiplier form, against a reference price.
// isMax selects ref*N for max bounds, ref/N for min bounds.
func ResolveBound(raw string, refPrice decimal.Decimal, isMax bool) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Decimal{}, fmt.Errorf("empty price bound")
	}
	if raw[len(raw)-1] == 'x' || raw[len(raw)-1] == 'X' {
		nStr := raw[:len(raw)-1]
		n, err := decimal.NewFromString(nStr)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("invalid multiplier bound %q: %w", raw, err)
		}
		if !n.IsPositive() {
			return decimal.Decimal{}, fmt.Errorf("multiplier bound %q must be positive", raw)
		}
		if isMax {
			return refPrice.Mul(n), nil
		}
		return refPrice.Div(n), nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price bound %q: %w", raw, err)
	}
	return v, nil
}

// levelRatio returns r = 1 + incrementPercent/100.
func levelRatio(incrementPercent decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(incrementPercent.Div(decimal.NewFromInt(100)))
}

// priceLadder returns descending sell prices (outermost first, innermost —
// closest to refPrice — last) and descending buy prices (innermost — closest
// to refPrice — first, outermost last), per the geometric ladder in §4.1.
func priceLadder(cfg Config) (sellDesc, buyDesc []decimal.Decimal) {
	r := levelRatio(cfg.IncrementPercent)

	p := cfg.MaxPrice
	for p.GreaterThanOrEqual(cfg.RefPrice) {
		sellDesc = append(sellDesc, p)
		p = p.Div(r)
	}

	if len(sellDesc) > 0 {
		p = sellDesc[len(sellDesc)-1].Div(r)
	} else {
		p = cfg.MaxPrice.Div(r)
	}
	for p.GreaterThanOrEqual(cfg.MinPrice) {
		buyDesc = append(buyDesc, p)
		p = p.Div(r)
	}
	return sellDesc, buyDesc
}

// spreadCounts returns the number of innermost SPREAD slots on the sell and
// buy sides per §4.1's spread-band formula.
func spreadCounts(incrementPercent, targetSpreadPercent decimal.Decimal) (sellSpread, buySpread int) {
	incr, _ := incrementPercent.Float64()
	target, _ := targetSpreadPercent.Float64()

	spreadFactor := 2.0
	effective := math.Max(target, spreadFactor*incr)

	r := 1 + incr/100
	nSpread := 2
	if r > 1 {
		n := int(math.Ceil(math.Log(1+effective/100) / math.Log(r)))
		if n > nSpread {
			nSpread = n
		}
	}

	sellSpread = (nSpread + 1) / 2 // ceil(nSpread/2)
	buySpread = nSpread / 2        // floor(nSpread/2)
	return sellSpread, buySpread
}

// sizeWeights computes raw[i] = (1 - incrementPercent/100)^(i*weight) for
// local index i (0 = closest to reference), then normalizes against funds.
// Returns nil for n == 0; the minOrderSize retry/abort rule lives in
// allocateSizes.
func sizeWeights(n int, incrementPercent decimal.Decimal, weight float64, funds decimal.Decimal) []decimal.Decimal {
	if n == 0 {
		return nil
	}
	incr, _ := incrementPercent.Float64()
	base := 1 - incr/100

	raw := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		raw[i] = math.Pow(base, float64(i)*weight)
		sum += raw[i]
	}

	sizes := make([]decimal.Decimal, n)
	if sum <= 0 {
		return sizes
	}
	for i := 0; i < n; i++ {
		sizes[i] = funds.Mul(decimal.NewFromFloat(raw[i] / sum))
	}
	return sizes
}

// Generate produces the deterministic, ordered list of grid slots for one
// bot: a geometric price ladder split into SELL/SPREAD/BUY bands, with
// weight-distributed sizing per side. When minOrderSize is binding on a side,
// that side's slots are still returned (not an error) but all carry a zero
// size, per §8's boundary behavior — the caller must treat a zero-size
// result as an abort.
func Generate(cfg Config) ([]*core.GridSlot, error) {
	if !cfg.IncrementPercent.IsPositive() {
		return nil, fmt.Errorf("increment_percent must be positive")
	}
	if !cfg.RefPrice.IsPositive() {
		return nil, fmt.Errorf("ref_price must be positive")
	}

	sellDesc, buyDesc := priceLadder(cfg)
	sellSpreadN, buySpreadN := spreadCounts(cfg.IncrementPercent, cfg.TargetSpreadPercent)

	// Reverse sell ladder so index 0 is innermost (closest to reference).
	sellByLocal := make([]decimal.Decimal, len(sellDesc))
	for i, p := range sellDesc {
		sellByLocal[len(sellDesc)-1-i] = p
	}
	buyByLocal := buyDesc // already innermost-first

	sellSizes := allocateSizes(len(sellByLocal), cfg.IncrementPercent, cfg.WeightSell, cfg.FundsSell, cfg.MinOrderSize)
	buySizes := allocateSizes(len(buyByLocal), cfg.IncrementPercent, cfg.WeightBuy, cfg.FundsBuy, cfg.MinOrderSize)

	slots := make([]*core.GridSlot, 0, len(sellByLocal)+len(buyByLocal))
	for i, price := range sellByLocal {
		side := core.SlotSideSell
		if i < sellSpreadN {
			side = core.SlotSideSpread
		}
		slots = append(slots, &core.GridSlot{
			ID:    fmt.Sprintf("SELL-%d", i),
			Price: price,
			Side:  side,
			State: core.SlotVirtual,
			Size:  sellSizes[i],
		})
	}
	for i, price := range buyByLocal {
		side := core.SlotSideBuy
		if i < buySpreadN {
			side = core.SlotSideSpread
		}
		slots = append(slots, &core.GridSlot{
			ID:    fmt.Sprintf("BUY-%d", i),
			Price: price,
			Side:  side,
			State: core.SlotVirtual,
			Size:  buySizes[i],
		})
	}

	return slots, nil
}

// allocateSizes implements the minOrderSize retry-then-abort rule: compute
// weighted sizes; if minOrderSize is set and any size falls below it, retry
// once with an unweighted (flat) distribution; if still below, return
// all-zero sizes to signal an abort to the caller.
func allocateSizes(n int, incrementPercent decimal.Decimal, weight float64, funds, minOrderSize decimal.Decimal) []decimal.Decimal {
	sizes := sizeWeights(n, incrementPercent, weight, funds)
	if n == 0 || minOrderSize.IsZero() {
		return sizes
	}

	if !anyBelowMin(sizes, minOrderSize) {
		return sizes
	}

	flat := sizeWeights(n, incrementPercent, 0, funds)
	if !anyBelowMin(flat, minOrderSize) {
		return flat
	}

	// minOrderSize is strictly binding: no achievable distribution clears it.
	return make([]decimal.Decimal, n)
}

func anyBelowMin(sizes []decimal.Decimal, minOrderSize decimal.Decimal) bool {
	for _, s := range sizes {
		if s.IsPositive() && s.LessThan(minOrderSize) {
			return true
		}
	}
	return false
}
