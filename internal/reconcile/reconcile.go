// Package reconcile aligns a bot's order store with the chain's reported
// open orders at startup and during steady state, the way the reconciler
// matched exchange open orders against local slots and flagged the
// leftovers as ghosts.
package reconcile

import (
	"github.com/shopspring/decimal"

	"gridmm/internal/core"
	"gridmm/internal/orderstore"
)

// Decision is the outcome of the startup decision table in §4.4.
type Decision string

const (
	DecisionRegenerate    Decision = "REGENERATE"
	DecisionResumeByID    Decision = "RESUME_BY_ID"
	DecisionResumeByPrice Decision = "RESUME_BY_PRICE"
)

// Report is the full result of one reconciliation pass.
type Report struct {
	Decision Decision

	// MatchedByID/MatchedByPrice slots had their chain_order_id confirmed or
	// assigned by this pass.
	MatchedByID    []*core.GridSlot
	MatchedByPrice []*core.GridSlot

	// GhostChainOrders are on-chain orders this pass could not pair to any
	// persisted slot — callers repurpose them via update-to-target when a
	// slot still needs an order, else cancel them.
	GhostChainOrders []core.ChainOrder

	// GhostLocalActives are persisted ACTIVE/PARTIAL slots whose chain order
	// vanished — their chain_order_id is cleared and they fall back to
	// VIRTUAL, to be picked up by the next activation pass.
	GhostLocalActives []*core.GridSlot
}

// priceTolerance returns price times half of incrementPercent/100, per §4.4's
// "closest-price slot within a tolerance of ½ incrementPercent".
func priceTolerance(price, incrementPercent decimal.Decimal) decimal.Decimal {
	half := incrementPercent.Div(decimal.NewFromInt(200))
	return price.Mul(half)
}

// Reconcile runs the startup (and steady-state ghost) decision table against
// a store already seeded from the persisted snapshot (or empty, if there was
// none) and the chain's current open orders.
func Reconcile(store *orderstore.Store, chainOrders []core.ChainOrder, incrementPercent decimal.Decimal) Report {
	if store.Len() == 0 {
		return Report{Decision: DecisionRegenerate}
	}

	byChainID := make(map[string]core.ChainOrder, len(chainOrders))
	for _, o := range chainOrders {
		byChainID[o.ChainOrderID] = o
	}

	actives := append(store.BySideState(core.SlotSideSell, core.SlotActive), store.BySideState(core.SlotSideBuy, core.SlotActive)...)
	actives = append(actives, store.BySideState(core.SlotSideSell, core.SlotPartial)...)
	actives = append(actives, store.BySideState(core.SlotSideBuy, core.SlotPartial)...)

	var matchedByID []*core.GridSlot
	for _, slot := range actives {
		slot.Mu.RLock()
		id := slot.ChainOrderID
		slot.Mu.RUnlock()
		if _, ok := byChainID[id]; ok {
			matchedByID = append(matchedByID, slot)
		}
	}

	if len(matchedByID) > 0 {
		return resumeByID(store, actives, matchedByID, byChainID)
	}

	if len(chainOrders) == 0 {
		return Report{Decision: DecisionRegenerate}
	}

	return resumeByPrice(store, actives, chainOrders, incrementPercent)
}

func resumeByID(store *orderstore.Store, actives []*core.GridSlot, matchedByID []*core.GridSlot, byChainID map[string]core.ChainOrder) Report {
	consumed := make(map[string]bool, len(matchedByID))
	for _, slot := range matchedByID {
		slot.Mu.RLock()
		consumed[slot.ChainOrderID] = true
		slot.Mu.RUnlock()
	}

	var ghostLocal []*core.GridSlot
	for _, slot := range actives {
		slot.Mu.RLock()
		id := slot.ChainOrderID
		slot.Mu.RUnlock()
		if !consumed[id] {
			ghostLocal = append(ghostLocal, slot)
			_ = store.Update(slot.ID, func(s *core.GridSlot) {
				s.State = core.SlotVirtual
				s.ChainOrderID = ""
			})
		}
	}

	var ghostChain []core.ChainOrder
	for id, order := range byChainID {
		if !consumed[id] {
			ghostChain = append(ghostChain, order)
		}
	}

	return Report{
		Decision:          DecisionResumeByID,
		MatchedByID:       matchedByID,
		GhostChainOrders:  ghostChain,
		GhostLocalActives: ghostLocal,
	}
}

func resumeByPrice(store *orderstore.Store, actives []*core.GridSlot, chainOrders []core.ChainOrder, incrementPercent decimal.Decimal) Report {
	virtuals := append(store.BySideState(core.SlotSideSell, core.SlotVirtual), store.BySideState(core.SlotSideBuy, core.SlotVirtual)...)
	candidates := append(append([]*core.GridSlot{}, actives...), virtuals...)

	remainingOrders := append([]core.ChainOrder{}, chainOrders...)
	var matched []*core.GridSlot

	for _, slot := range candidates {
		slot.Mu.RLock()
		slotSide := slot.Side
		slotPrice := slot.Price
		slot.Mu.RUnlock()

		expectedSide := core.SideSell
		if slotSide == core.SlotSideBuy {
			expectedSide = core.SideBuy
		}
		if slotSide == core.SlotSideSpread {
			continue
		}

		tol := priceTolerance(slotPrice, incrementPercent)
		bestIdx := -1
		bestDiff := decimal.Decimal{}
		for i, order := range remainingOrders {
			if order.Side != expectedSide {
				continue
			}
			diff := order.Price.Sub(slotPrice).Abs()
			if diff.GreaterThan(tol) {
				continue
			}
			if bestIdx == -1 || diff.LessThan(bestDiff) {
				bestIdx = i
				bestDiff = diff
			}
		}
		if bestIdx == -1 {
			continue
		}

		order := remainingOrders[bestIdx]
		remainingOrders = append(remainingOrders[:bestIdx], remainingOrders[bestIdx+1:]...)

		_ = store.Update(slot.ID, func(s *core.GridSlot) {
			s.State = core.SlotActive
			s.ChainOrderID = order.ChainOrderID
			s.Size = order.Remaining
		})
		matched = append(matched, slot)
	}

	if len(matched) == 0 {
		return Report{Decision: DecisionRegenerate}
	}

	return Report{
		Decision:         DecisionResumeByPrice,
		MatchedByPrice:   matched,
		GhostChainOrders: remainingOrders,
	}
}

// ActivationPlan is the result of adjusting a side's ACTIVE+PARTIAL count to
// a new activeOrders[side] target, per §8's boundary behaviors.
type ActivationPlan struct {
	ToActivate []*core.GridSlot // outermost-to-innermost virtuals to place
	ToCancel   []*core.GridSlot // innermost-to-outermost actives to cancel
}

// AdjustActiveCount compares the current ACTIVE+PARTIAL count on a side
// against target and returns the slots to activate (if target grew) or
// cancel (if target shrank), per §8's named boundary behaviors. gridgen
// assigns local index 0 to the innermost (closest-to-reference) slot on
// each side and increasing index outward, and orderstore preserves that as
// insertion order — so the front of a BySideState slice is innermost and
// the back is outermost.
func AdjustActiveCount(store *orderstore.Store, side core.GridSlotSide, target int) ActivationPlan {
	actives := store.BySideState(side, core.SlotActive)
	actives = append(actives, store.BySideState(side, core.SlotPartial)...)

	if len(actives) < target {
		virtuals := store.BySideState(side, core.SlotVirtual)
		need := target - len(actives)
		if need > len(virtuals) {
			need = len(virtuals)
		}
		// Shortfall is filled by activating the outermost virtuals first.
		return ActivationPlan{ToActivate: virtuals[len(virtuals)-need:]}
	}

	if len(actives) > target {
		excess := len(actives) - target
		// Excess is trimmed from the innermost actives first.
		return ActivationPlan{ToCancel: actives[:excess]}
	}

	return ActivationPlan{}
}
