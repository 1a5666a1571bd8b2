// Package rebalance decides what happens to the grid after one batch of
// fills: which mirror-side order rotates to a new price/size, and which
// brand-new orders need creating, the way the slot manager's
// ApplyActionResults folded exchange results back into slot state.
package rebalance

import (
	"gridmm/internal/core"
	"gridmm/internal/fillreducer"
	"gridmm/internal/ledger"
	"gridmm/internal/orderstore"
)

// Rotation records one completed rotation: the mirror-side slot freed back
// to VIRTUAL, and the slot that took over its chain order.
type Rotation struct {
	From *core.GridSlot // reverted to VIRTUAL
	To   *core.GridSlot // now ACTIVE or PARTIAL, carrying From's old chain_order_id
	Op   core.ChainOp
}

// Result is the rebalancer's output for one fill batch, per §4.5.
type Result struct {
	OrdersToPlace  []core.ChainOp // creates for slots with no mirror order to rotate
	OrdersToRotate []Rotation     // update ops reusing an existing chain order
	PartialMoves   []core.ChainOp // price-only updates of PARTIAL orders (currently unused, see below)
}

func mirrorGridSide(side core.GridSlotSide) core.GridSlotSide {
	if side == core.SlotSideBuy {
		return core.SlotSideSell
	}
	return core.SlotSideBuy
}

func orderSideOf(gridSide core.GridSlotSide) core.Side {
	if gridSide == core.SlotSideBuy {
		return core.SideBuy
	}
	return core.SideSell
}

// Process folds one deduplicated fill batch (the fill reducer's results)
// into rotations and creates. Only FULL_FILL outcomes trigger a rotation;
// PARTIAL_FILL outcomes leave the slot resting on chain as-is — this
// implementation does not reprice PARTIAL slots on every partial fill (the
// spec's partial-move is described as something the rebalancer "may"
// schedule, not a mandatory per-fill action, and repricing a still-resting
// order on every partial tick would itself need its own chain round-trip
// budget the spec does not define), so PartialMoves stays empty unless a
// future divergence pass populates it.
func Process(store *orderstore.Store, l *ledger.Ledger, results []fillreducer.Result) *Result {
	out := &Result{}
	for _, res := range results {
		if res.Outcome != fillreducer.OutcomeFull || res.Slot == nil {
			continue
		}
		if rot, ok := Rotate(store, l, res.Slot); ok {
			out.OrdersToRotate = append(out.OrdersToRotate, *rot)
		}
	}
	return out
}

// Rotate implements the rotation primitive for one fully-filled slot: the
// innermost ACTIVE slot on the mirror side is freed back to VIRTUAL, and the
// next-outward VIRTUAL slot on that side (the smallest-index slot still
// VIRTUAL, immediately beyond the current active window) takes over its
// chain order at its own target price/size. Funds for the new size are
// drawn from the mirror side's pendingProceeds first, then available; a
// shortfall yields a PARTIAL placement rather than a full ACTIVE one.
//
// Reports ok=false when there is no active order to free or no virtual slot
// to rotate into — the caller leaves the grid as-is and a later divergence
// pass will pick up the shortfall.
func Rotate(store *orderstore.Store, l *ledger.Ledger, filled *core.GridSlot) (*Rotation, bool) {
	filled.Mu.RLock()
	filledSide := filled.Side
	filled.Mu.RUnlock()

	mirrorSide := mirrorGridSide(filledSide)
	mirrorOrderSide := orderSideOf(mirrorSide)

	actives := store.BySideState(mirrorSide, core.SlotActive)
	if len(actives) == 0 {
		return nil, false
	}
	innermost := actives[0]

	virtuals := store.BySideState(mirrorSide, core.SlotVirtual)
	if len(virtuals) == 0 {
		return nil, false
	}
	target := virtuals[0]

	innermost.Mu.RLock()
	oldChainOrderID := innermost.ChainOrderID
	oldSize := innermost.Size
	innermost.Mu.RUnlock()

	target.Mu.RLock()
	wantSize := target.Size
	targetPrice := target.Price
	target.Mu.RUnlock()

	_ = l.ReleaseCommitted(mirrorOrderSide, oldSize)
	consumed := l.ConsumeProceeds(mirrorOrderSide, wantSize)

	newState := core.SlotActive
	newSize := wantSize
	if consumed.LessThan(wantSize) {
		newState = core.SlotPartial
		newSize = consumed
	}

	// Clear the source slot's chain_order_id before the target claims it —
	// otherwise the source's reindex runs after the target's and deletes the
	// byChainOrderID entry the target just took over.
	_ = store.Update(innermost.ID, func(s *core.GridSlot) {
		s.State = core.SlotVirtual
		s.ChainOrderID = ""
	})
	_ = store.Update(target.ID, func(s *core.GridSlot) {
		s.State = newState
		s.Size = newSize
		s.ChainOrderID = oldChainOrderID
	})

	op := core.ChainOp{
		Kind:         core.ChainOpUpdate,
		Side:         mirrorOrderSide,
		Price:        targetPrice,
		Size:         newSize,
		ChainOrderID: oldChainOrderID,
	}

	return &Rotation{From: innermost, To: target, Op: op}, true
}
