// Package ledger tracks the fund accounting for one bot's two sides:
// total, committed, available, cache, pending proceeds, and fees owed.
// Every mutation goes through a locked method so the invariant
// committed + available + virtualReserved == total holds after it returns.
package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"gridmm/internal/core"
	apperrors "gridmm/pkg/errors"
)

// Ledger guards the Funds for both sides of one bot behind a single mutex,
// matching the bookkeeping manager's mutex-around-field-math idiom.
type Ledger struct {
	mu   sync.Mutex
	buy  core.Funds
	sell core.Funds
}

// New builds a Ledger seeded with the total funds observed for each side at
// bot construction (from config or a one-time chain balance read).
func New(buyTotal, sellTotal decimal.Decimal) *Ledger {
	return &Ledger{
		buy:  core.Funds{Side: core.SideBuy, Total: buyTotal, Available: buyTotal},
		sell: core.Funds{Side: core.SideSell, Total: sellTotal, Available: sellTotal},
	}
}

// Restore rebuilds a Ledger from exact funds read back from a persisted
// snapshot. Available is recomputed rather than trusted verbatim, so a
// snapshot written by an older build still satisfies the invariant after
// restore.
func Restore(buy, sell core.Funds) *Ledger {
	l := &Ledger{buy: buy, sell: sell}
	recomputeLocked(&l.buy)
	recomputeLocked(&l.sell)
	return l
}

func (l *Ledger) fundsLocked(side core.Side) *core.Funds {
	if side == core.SideBuy {
		return &l.buy
	}
	return &l.sell
}

// Snapshot returns a copy of the funds for both sides.
func (l *Ledger) Snapshot() (buy, sell core.Funds) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buy, l.sell
}

// Side returns a copy of the funds for one side.
func (l *Ledger) Side(side core.Side) core.Funds {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.fundsLocked(side)
}

// recomputeLocked restores Available = Total - Committed - VirtualReserved
// after a mutation, clamping negative drift from rounding to zero.
func recomputeLocked(f *core.Funds) {
	available := f.Total.Sub(f.Committed).Sub(f.VirtualReserved)
	if available.IsNegative() {
		available = decimal.Zero
	}
	f.Available = available
}

// SetVirtualReserved recomputes VirtualReserved as the sum of sizes of
// VIRTUAL slots on a side — called after grid generation/regeneration.
func (l *Ledger) SetVirtualReserved(side core.Side, reserved decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.fundsLocked(side)
	f.VirtualReserved = reserved
	recomputeLocked(f)
}

// Commit locks size into Committed when a slot on side transitions to
// ACTIVE (VIRTUAL -> ACTIVE), reducing VirtualReserved by the same amount.
func (l *Ledger) Commit(side core.Side, size decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.fundsLocked(side)
	f.Committed = f.Committed.Add(size)
	f.VirtualReserved = f.VirtualReserved.Sub(size)
	if f.VirtualReserved.IsNegative() {
		f.VirtualReserved = decimal.Zero
	}
	recomputeLocked(f)
}

// ReleaseCommitted frees size from Committed, e.g. on a full fill or a
// cancel, per §4.3's "release slot.size from committed[slot.side]".
func (l *Ledger) ReleaseCommitted(side core.Side, size decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.fundsLocked(side)
	if size.GreaterThan(f.Committed) {
		return fmt.Errorf("ledger: release %s exceeds committed %s on %s: %w", size, f.Committed, side, apperrors.ErrInsufficientFunds)
	}
	f.Committed = f.Committed.Sub(size)
	recomputeLocked(f)
	return nil
}

// CreditProceeds adds a fill's received amount to the opposite side's
// PendingProceeds: a SELL's proceeds credit the buy side, a BUY's proceeds
// credit the sell side.
func (l *Ledger) CreditProceeds(filledSlotSide core.Side, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mirror := core.SideBuy
	if filledSlotSide == core.SideBuy {
		mirror = core.SideSell
	}
	f := l.fundsLocked(mirror)
	f.PendingProceeds = f.PendingProceeds.Add(amount)
}

// ConsumeProceeds draws down to `want` from PendingProceeds first, then from
// Available, returning the amount actually consumed (<= want) and committing
// it. This is the rotation-funding rule in §4.5: proceeds first, then
// available; a partial draw signals the caller to place a PARTIAL rotation.
//
// Proceeds are realized funds a prior fill on the opposite side handed to
// this side — genuinely new money, not previously reflected in Total — so
// the portion drawn from PendingProceeds is folded into Total as it is
// committed. This keeps committed+available+virtualReserved==total exact
// (the data model's ledger invariant) while still matching §8 property 2's
// total+pendingProceeds-consumed accounting across the transition.
func (l *Ledger) ConsumeProceeds(side core.Side, want decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.fundsLocked(side)

	fromProceeds := decimal.Min(want, f.PendingProceeds)
	f.PendingProceeds = f.PendingProceeds.Sub(fromProceeds)
	f.Total = f.Total.Add(fromProceeds)

	remaining := want.Sub(fromProceeds)
	fromAvailable := decimal.Min(remaining, f.Available)

	consumed := fromProceeds.Add(fromAvailable)
	f.Committed = f.Committed.Add(consumed)
	recomputeLocked(f)
	return consumed
}

// AddFees accrues fee debt onto the given side's FeesOwed; per §4's design
// notes this is kept as an explicit ledger field rather than netted inline.
func (l *Ledger) AddFees(side core.Side, fee decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.fundsLocked(side)
	f.FeesOwed = f.FeesOwed.Add(fee)
}

// SetCacheFunds stores residual funds from a resize that did not fit a
// whole slot, to be re-injected into the next grid update.
func (l *Ledger) SetCacheFunds(side core.Side, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fundsLocked(side).CacheFunds = amount
}

// Reset clears proceeds/fees/cache for a side, used on the
// fail-safe reconciliation-ambiguity path (§7).
func (l *Ledger) Reset(side core.Side) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.fundsLocked(side)
	f.PendingProceeds = decimal.Zero
	f.FeesOwed = decimal.Zero
	f.CacheFunds = decimal.Zero
}
