package rebalance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridmm/internal/core"
	"gridmm/internal/fillreducer"
	"gridmm/internal/ledger"
	"gridmm/internal/orderstore"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// s2Fixture reproduces the shape of spec scenario S2: a sell slot about to
// fill, and a contiguous window of 5 active buys with one virtual slot
// beyond the outermost active waiting to be rotated into.
func s2Fixture() (*orderstore.Store, *ledger.Ledger, *core.GridSlot) {
	sell := &core.GridSlot{ID: "SELL-0", Price: d(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: d(0.05), ChainOrderID: "sell-chain-0"}

	buys := []*core.GridSlot{
		{ID: "BUY-0", Price: d(99.01), Side: core.SlotSideBuy, State: core.SlotActive, Size: d(200), ChainOrderID: "buy-chain-0"},
		{ID: "BUY-1", Price: d(98.02), Side: core.SlotSideBuy, State: core.SlotActive, Size: d(210), ChainOrderID: "buy-chain-1"},
		{ID: "BUY-2", Price: d(97.04), Side: core.SlotSideBuy, State: core.SlotActive, Size: d(220), ChainOrderID: "buy-chain-2"},
		{ID: "BUY-3", Price: d(96.07), Side: core.SlotSideBuy, State: core.SlotActive, Size: d(230), ChainOrderID: "buy-chain-3"},
		{ID: "BUY-4", Price: d(95.11), Side: core.SlotSideBuy, State: core.SlotActive, Size: d(240), ChainOrderID: "buy-chain-4"},
		{ID: "BUY-5", Price: d(94.17), Side: core.SlotSideBuy, State: core.SlotVirtual, Size: d(250)},
	}

	slots := append([]*core.GridSlot{sell}, buys...)
	store := orderstore.New(slots)

	l := ledger.New(d(1100), d(0.25))
	l.Commit(core.SideBuy, d(200).Add(d(210)).Add(d(220)).Add(d(230)).Add(d(240)))
	l.Commit(core.SideSell, d(0.05))
	// Enough pending proceeds credited from the sell fill to fully fund BUY-5.
	l.CreditProceeds(core.SideSell, d(250))

	return store, l, sell
}

func TestRotate_FullFillRotatesInnermostActiveToNextVirtual(t *testing.T) {
	store, l, sell := s2Fixture()

	rot, ok := Rotate(store, l, sell)
	assert.True(t, ok)
	assert.Equal(t, "BUY-0", rot.From.ID)
	assert.Equal(t, "BUY-5", rot.To.ID)
	assert.Equal(t, core.ChainOpUpdate, rot.Op.Kind)
	assert.Equal(t, "buy-chain-0", rot.Op.ChainOrderID)

	buy0, _ := store.Get("BUY-0")
	assert.Equal(t, core.SlotVirtual, buy0.State)
	assert.Empty(t, buy0.ChainOrderID)

	buy5, _ := store.Get("BUY-5")
	assert.Equal(t, core.SlotActive, buy5.State)
	assert.Equal(t, "buy-chain-0", buy5.ChainOrderID)
	assert.True(t, buy5.Size.Equal(d(250)))
}

func TestRotate_ByChainOrderIDResolvesToRotatedTarget(t *testing.T) {
	store, l, sell := s2Fixture()

	_, ok := Rotate(store, l, sell)
	assert.True(t, ok)

	slot, ok := store.ByChainOrderID("buy-chain-0")
	assert.True(t, ok, "buy-chain-0 should still resolve after rotation")
	assert.Equal(t, "BUY-5", slot.ID)
}

func TestRotate_ConservesCommittedAcrossRotation(t *testing.T) {
	store, l, sell := s2Fixture()
	before := l.Side(core.SideBuy)

	_, ok := Rotate(store, l, sell)
	assert.True(t, ok)

	after := l.Side(core.SideBuy)
	delta := after.Committed.Sub(before.Committed)
	assert.True(t, delta.Equal(d(250).Sub(d(200))), "committed should grow by newSize-oldSize, got %s", delta)
}

func TestRotate_InsufficientProceedsYieldsPartialPlacement(t *testing.T) {
	sell := &core.GridSlot{ID: "SELL-0", Price: d(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: d(0.05), ChainOrderID: "sell-chain-0"}
	buy0 := &core.GridSlot{ID: "BUY-0", Price: d(99.01), Side: core.SlotSideBuy, State: core.SlotActive, Size: d(50), ChainOrderID: "buy-chain-0"}
	buy1 := &core.GridSlot{ID: "BUY-1", Price: d(94.17), Side: core.SlotSideBuy, State: core.SlotVirtual, Size: d(250)}
	store := orderstore.New([]*core.GridSlot{sell, buy0, buy1})

	// Total buy funds exactly cover the existing 50 committed, with no
	// available headroom beyond that; only 50 of proceeds is on hand toward
	// the 250 the new target slot wants, so the 200 shortfall can't be met.
	l := ledger.New(d(50), d(0.05))
	l.Commit(core.SideBuy, d(50))
	l.Commit(core.SideSell, d(0.05))
	l.CreditProceeds(core.SideSell, d(50))

	rot, ok := Rotate(store, l, sell)
	assert.True(t, ok)

	buy1Slot, _ := store.Get("BUY-1")
	assert.Equal(t, core.SlotPartial, buy1Slot.State)
	assert.True(t, buy1Slot.Size.Equal(d(100)))
	assert.Equal(t, core.SlotPartial, rot.To.State)
}

func TestRotate_NoActiveMirrorSlotIsANoOp(t *testing.T) {
	sell := &core.GridSlot{ID: "SELL-0", Price: d(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: d(0.05), ChainOrderID: "sell-chain-0"}
	buyVirtual := &core.GridSlot{ID: "BUY-0", Price: d(99.01), Side: core.SlotSideBuy, State: core.SlotVirtual, Size: d(200)}
	store := orderstore.New([]*core.GridSlot{sell, buyVirtual})
	l := ledger.New(d(1000), d(10))

	_, ok := Rotate(store, l, sell)
	assert.False(t, ok)
}

func TestProcess_OnlyFullFillsTriggerRotation(t *testing.T) {
	store, l, sell := s2Fixture()

	results := []fillreducer.Result{
		{Outcome: fillreducer.OutcomePartial, Slot: sell},
		{Outcome: fillreducer.OutcomeFull, Slot: sell},
	}

	result := Process(store, l, results)
	assert.Len(t, result.OrdersToRotate, 1)
	assert.Empty(t, result.PartialMoves)
}
