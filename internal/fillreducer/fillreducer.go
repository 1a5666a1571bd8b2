// Package fillreducer applies fill events reported by the chain client's
// fill stream to the order store and funds ledger, the way the position
// manager's OnOrderUpdate folded exchange fill messages into its own state.
package fillreducer

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridmm/internal/core"
	"gridmm/internal/ledger"
	"gridmm/internal/orderstore"
	"gridmm/internal/precision"
)

// Outcome classifies how one fill event changed a slot.
type Outcome string

const (
	OutcomeIgnoredTaker  Outcome = "IGNORED_TAKER"
	OutcomeIgnoredDup    Outcome = "IGNORED_DUPLICATE"
	OutcomeIgnoredNoSlot Outcome = "IGNORED_NO_MATCHING_SLOT"
	OutcomeFull          Outcome = "FULL_FILL"
	OutcomePartial       Outcome = "PARTIAL_FILL"
)

// Result is what Reduce reports for one fill event.
type Result struct {
	Outcome Outcome
	Slot    *core.GridSlot // nil unless Outcome is FULL_FILL or PARTIAL_FILL
}

// dedupKey is (order_id, block, history_id) per §4.3.
type dedupKey struct {
	chainOrderID string
	blockHeight  uint64
	historyID    string
}

// Reducer folds fill events into an order store and ledger. It is not
// itself concurrency-safe against overlapping Reduce calls for the same
// bot — the trigger loop's single in-flight fill handler serializes that.
type Reducer struct {
	store  *orderstore.Store
	ledger *ledger.Ledger

	baseDecimals  int
	quoteDecimals int

	dedupWindow time.Duration

	mu   sync.Mutex
	seen map[dedupKey]time.Time
}

// New builds a Reducer over a bot's store and ledger. baseDecimals/
// quoteDecimals are the chain precisions for asset A (sold by SELL slots)
// and asset B (sold by BUY slots), used to compute the FULL/PARTIAL epsilon.
func New(store *orderstore.Store, l *ledger.Ledger, baseDecimals, quoteDecimals int, dedupWindow time.Duration) *Reducer {
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Second
	}
	return &Reducer{
		store:         store,
		ledger:        l,
		baseDecimals:  baseDecimals,
		quoteDecimals: quoteDecimals,
		dedupWindow:   dedupWindow,
		seen:          make(map[dedupKey]time.Time),
	}
}

// epsilon returns one smallest unit of the asset a slot sells: A for SELL
// slots, B for BUY slots.
func (r *Reducer) epsilon(slotSide core.GridSlotSide) decimal.Decimal {
	decimals := r.baseDecimals
	if slotSide == core.SlotSideBuy {
		decimals = r.quoteDecimals
	}
	return precision.SmallestUnit(decimals)
}

// Reduce applies one fill event. now is passed in by the caller (the trigger
// loop) rather than read from the clock here, so dedup-window behavior is
// deterministically testable.
func (r *Reducer) Reduce(fill core.FillEvent, now time.Time) Result {
	if !fill.IsMaker {
		return Result{Outcome: OutcomeIgnoredTaker}
	}

	key := dedupKey{chainOrderID: fill.ChainOrderID, blockHeight: fill.BlockHeight, historyID: fill.HistoryID}
	if r.isDuplicate(key, now) {
		return Result{Outcome: OutcomeIgnoredDup}
	}

	slot, ok := r.store.ByChainOrderID(fill.ChainOrderID)
	if !ok {
		return Result{Outcome: OutcomeIgnoredNoSlot}
	}

	slot.Mu.RLock()
	slotSide := slot.Side
	slotSize := slot.Size
	slot.Mu.RUnlock()

	eps := r.epsilon(slotSide)
	remaining := slotSize.Sub(fill.FilledSize)

	mirrorCredit := func() {
		r.ledger.CreditProceeds(slot.OrderSide(), fill.ReceivedSize)
	}

	if remaining.LessThanOrEqual(eps) {
		_ = r.store.Update(slot.ID, func(s *core.GridSlot) {
			s.State = core.SlotFilled
			s.ChainOrderID = ""
		})
		_ = r.ledger.ReleaseCommitted(slot.OrderSide(), slotSize)
		mirrorCredit()
		return Result{Outcome: OutcomeFull, Slot: slot}
	}

	_ = r.store.Update(slot.ID, func(s *core.GridSlot) {
		s.State = core.SlotPartial
		s.Size = remaining
	})
	_ = r.ledger.ReleaseCommitted(slot.OrderSide(), fill.FilledSize)
	mirrorCredit()
	return Result{Outcome: OutcomePartial, Slot: slot}
}

// ReduceBatch applies an aggregated, already-deduplicated batch of fills in
// arrival order, per §5's single-drain semantics, and returns one Result per
// fill in the same order.
func (r *Reducer) ReduceBatch(fills []core.FillEvent, now time.Time) []Result {
	out := make([]Result, len(fills))
	for i, f := range fills {
		out[i] = r.Reduce(f, now)
	}
	return out
}

func (r *Reducer) isDuplicate(key dedupKey, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, seenAt := range r.seen {
		if now.Sub(seenAt) > r.dedupWindow {
			delete(r.seen, k)
		}
	}

	if _, ok := r.seen[key]; ok {
		return true
	}
	r.seen[key] = now
	return false
}
