package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridmm/internal/core"
	"gridmm/internal/orderstore"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestReconcile_EmptyStoreRegenerates(t *testing.T) {
	store := orderstore.New(nil)
	report := Reconcile(store, nil, d(1))
	assert.Equal(t, DecisionRegenerate, report.Decision)
}

func TestReconcile_ResumesByIDWhenPersistedActiveFoundOnChain(t *testing.T) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Price: d(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: d(2), ChainOrderID: "x1"},
		{ID: "BUY-0", Price: d(99.01), Side: core.SlotSideBuy, State: core.SlotActive, Size: d(5), ChainOrderID: "x2"},
	}
	store := orderstore.New(slots)

	chainOrders := []core.ChainOrder{
		{ChainOrderID: "x1", Side: core.SideSell, Price: d(192.20), Size: d(2), Remaining: d(2)},
	}

	report := Reconcile(store, chainOrders, d(1))
	assert.Equal(t, DecisionResumeByID, report.Decision)
	assert.Len(t, report.MatchedByID, 1)
	assert.Equal(t, "SELL-0", report.MatchedByID[0].ID)

	// x2 vanished from chain: BUY-0 becomes a ghost local and reverts to VIRTUAL.
	assert.Len(t, report.GhostLocalActives, 1)
	assert.Equal(t, "BUY-0", report.GhostLocalActives[0].ID)
	slot, _ := store.Get("BUY-0")
	assert.Equal(t, core.SlotVirtual, slot.State)
	assert.Empty(t, slot.ChainOrderID)
}

func TestReconcile_PriceMatchFallbackWhenNoIDsMatch(t *testing.T) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Price: d(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: d(2), ChainOrderID: "stale-id"},
	}
	store := orderstore.New(slots)

	chainOrders := []core.ChainOrder{
		{ChainOrderID: "new-id", Side: core.SideSell, Price: d(192.21), Size: d(2), Remaining: d(2)},
	}

	report := Reconcile(store, chainOrders, d(1))
	assert.Equal(t, DecisionResumeByPrice, report.Decision)
	assert.Len(t, report.MatchedByPrice, 1)

	slot, _ := store.Get("SELL-0")
	assert.Equal(t, "new-id", slot.ChainOrderID)
}

func TestReconcile_RegeneratesWhenPriceMatchFindsNothing(t *testing.T) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Price: d(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: d(2), ChainOrderID: "stale-id"},
	}
	store := orderstore.New(slots)

	chainOrders := []core.ChainOrder{
		{ChainOrderID: "far-id", Side: core.SideSell, Price: d(500), Size: d(2), Remaining: d(2)},
	}

	report := Reconcile(store, chainOrders, d(1))
	assert.Equal(t, DecisionRegenerate, report.Decision)
}

func TestReconcile_NonEmptyPersistedEmptyChainRegenerates(t *testing.T) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Price: d(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: d(2), ChainOrderID: "x1"},
	}
	store := orderstore.New(slots)

	report := Reconcile(store, nil, d(1))
	assert.Equal(t, DecisionRegenerate, report.Decision)
}

func TestAdjustActiveCount_DecreaseCancelsInnermostActivesFirst(t *testing.T) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Side: core.SlotSideSell, State: core.SlotActive, ChainOrderID: "a"},
		{ID: "SELL-1", Side: core.SlotSideSell, State: core.SlotActive, ChainOrderID: "b"},
		{ID: "SELL-2", Side: core.SlotSideSell, State: core.SlotActive, ChainOrderID: "c"},
	}
	store := orderstore.New(slots)

	plan := AdjustActiveCount(store, core.SlotSideSell, 1)
	assert.Len(t, plan.ToCancel, 2)
	assert.Equal(t, "SELL-0", plan.ToCancel[0].ID)
	assert.Equal(t, "SELL-1", plan.ToCancel[1].ID)
}

func TestAdjustActiveCount_IncreaseActivatesOutermostVirtualsFirst(t *testing.T) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Side: core.SlotSideSell, State: core.SlotActive, ChainOrderID: "a"},
		{ID: "SELL-1", Side: core.SlotSideSell, State: core.SlotVirtual},
		{ID: "SELL-2", Side: core.SlotSideSell, State: core.SlotVirtual},
		{ID: "SELL-3", Side: core.SlotSideSell, State: core.SlotVirtual},
	}
	store := orderstore.New(slots)

	plan := AdjustActiveCount(store, core.SlotSideSell, 3)
	assert.Len(t, plan.ToActivate, 2)
	assert.Equal(t, "SELL-2", plan.ToActivate[0].ID)
	assert.Equal(t, "SELL-3", plan.ToActivate[1].ID)
}

func TestAdjustActiveCount_NoChangeWhenAlreadyAtTarget(t *testing.T) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Side: core.SlotSideSell, State: core.SlotActive, ChainOrderID: "a"},
	}
	store := orderstore.New(slots)

	plan := AdjustActiveCount(store, core.SlotSideSell, 1)
	assert.Empty(t, plan.ToActivate)
	assert.Empty(t, plan.ToCancel)
}
