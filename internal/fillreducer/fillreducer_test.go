package fillreducer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridmm/internal/core"
	"gridmm/internal/ledger"
	"gridmm/internal/orderstore"
)

func newFixture() (*orderstore.Store, *ledger.Ledger, *Reducer) {
	slots := []*core.GridSlot{
		{ID: "SELL-0", Price: decimal.NewFromFloat(192.20), Side: core.SlotSideSell, State: core.SlotActive, Size: decimal.NewFromFloat(2.0), ChainOrderID: "chain-sell-0"},
	}
	store := orderstore.New(slots)
	l := ledger.New(decimal.NewFromInt(1000), decimal.NewFromInt(10))
	l.Commit(core.SideSell, decimal.NewFromFloat(2.0))

	r := New(store, l, 8, 8, 5*time.Second)
	return store, l, r
}

func TestReduce_FullFillMarksSlotFilledAndReleasesCommitted(t *testing.T) {
	store, l, r := newFixture()
	now := time.Unix(1000, 0)

	fill := core.FillEvent{
		ChainOrderID: "chain-sell-0",
		Side:         core.SideSell,
		FilledSize:   decimal.NewFromFloat(2.0),
		ReceivedSize: decimal.NewFromFloat(384.4),
		IsMaker:      true,
		BlockHeight:  100,
		HistoryID:    "h1",
	}

	res := r.Reduce(fill, now)
	assert.Equal(t, OutcomeFull, res.Outcome)

	slot, ok := store.Get("SELL-0")
	assert.True(t, ok)
	assert.Equal(t, core.SlotFilled, slot.State)
	assert.Empty(t, slot.ChainOrderID)

	sell := l.Side(core.SideSell)
	assert.True(t, sell.Committed.IsZero())

	buy := l.Side(core.SideBuy)
	assert.True(t, buy.PendingProceeds.Equal(decimal.NewFromFloat(384.4)))
}

func TestReduce_PartialFillReducesSizeAndCommitted(t *testing.T) {
	store, l, r := newFixture()
	now := time.Unix(1000, 0)

	fill := core.FillEvent{
		ChainOrderID: "chain-sell-0",
		Side:         core.SideSell,
		FilledSize:   decimal.NewFromFloat(0.8),
		ReceivedSize: decimal.NewFromFloat(156),
		IsMaker:      true,
		BlockHeight:  100,
		HistoryID:    "h1",
	}

	res := r.Reduce(fill, now)
	assert.Equal(t, OutcomePartial, res.Outcome)

	slot, _ := store.Get("SELL-0")
	assert.Equal(t, core.SlotPartial, slot.State)
	assert.True(t, slot.Size.Equal(decimal.NewFromFloat(1.2)))

	sell := l.Side(core.SideSell)
	assert.True(t, sell.Committed.Equal(decimal.NewFromFloat(1.2)))

	buy := l.Side(core.SideBuy)
	assert.True(t, buy.PendingProceeds.Equal(decimal.NewFromInt(156)))
}

func TestReduce_DuplicateFillWithinWindowIsNoOp(t *testing.T) {
	store, l, r := newFixture()
	now := time.Unix(1000, 0)

	fill := core.FillEvent{
		ChainOrderID: "chain-sell-0",
		Side:         core.SideSell,
		FilledSize:   decimal.NewFromFloat(0.8),
		ReceivedSize: decimal.NewFromFloat(156),
		IsMaker:      true,
		BlockHeight:  100,
		HistoryID:    "h1",
	}

	first := r.Reduce(fill, now)
	assert.Equal(t, OutcomePartial, first.Outcome)

	second := r.Reduce(fill, now.Add(time.Second))
	assert.Equal(t, OutcomeIgnoredDup, second.Outcome)

	slot, _ := store.Get("SELL-0")
	assert.True(t, slot.Size.Equal(decimal.NewFromFloat(1.2)))

	buy := l.Side(core.SideBuy)
	assert.True(t, buy.PendingProceeds.Equal(decimal.NewFromInt(156)))
}

func TestReduce_DuplicateOutsideWindowIsReprocessed(t *testing.T) {
	_, _, r := newFixture()
	now := time.Unix(1000, 0)

	fill := core.FillEvent{
		ChainOrderID: "chain-sell-0",
		FilledSize:   decimal.NewFromFloat(0.8),
		ReceivedSize: decimal.NewFromFloat(156),
		IsMaker:      true,
		BlockHeight:  100,
		HistoryID:    "h1",
	}

	first := r.Reduce(fill, now)
	assert.Equal(t, OutcomePartial, first.Outcome)

	// Outside the 5s dedup window, but now applied against an already-PARTIAL
	// slot with a smaller remaining size: exercises re-processing, not dedup.
	second := r.Reduce(fill, now.Add(10*time.Second))
	assert.NotEqual(t, OutcomeIgnoredDup, second.Outcome)
}

func TestReduce_TakerFillIsIgnored(t *testing.T) {
	_, _, r := newFixture()
	fill := core.FillEvent{ChainOrderID: "chain-sell-0", IsMaker: false}

	res := r.Reduce(fill, time.Unix(1000, 0))
	assert.Equal(t, OutcomeIgnoredTaker, res.Outcome)
}

func TestReduce_NoMatchingSlotIsIgnored(t *testing.T) {
	_, _, r := newFixture()
	fill := core.FillEvent{ChainOrderID: "does-not-exist", IsMaker: true}

	res := r.Reduce(fill, time.Unix(1000, 0))
	assert.Equal(t, OutcomeIgnoredNoSlot, res.Outcome)
}

func TestReduceBatch_PreservesOrderAndDedupsWithinBatch(t *testing.T) {
	_, _, r := newFixture()
	now := time.Unix(1000, 0)
	fill := core.FillEvent{
		ChainOrderID: "chain-sell-0",
		FilledSize:   decimal.NewFromFloat(2.0),
		ReceivedSize: decimal.NewFromFloat(384.4),
		IsMaker:      true,
		BlockHeight:  100,
		HistoryID:    "h1",
	}

	results := r.ReduceBatch([]core.FillEvent{fill, fill}, now)
	assert.Len(t, results, 2)
	assert.Equal(t, OutcomeFull, results[0].Outcome)
	assert.Equal(t, OutcomeIgnoredDup, results[1].Outcome)
}
