package fake

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridmm/internal/chain"
	"gridmm/internal/core"
)

func newFixture() *FakeChainClient {
	return New(map[string]chain.AssetMetadata{
		"BASE":  {Precision: 8, Symbol: "BASE"},
		"QUOTE": {Precision: 6, Symbol: "QUOTE"},
	}, chain.AssetFees{MarketFeeBps: decimal.NewFromFloat(10)})
}

func TestFakeChainClient_CreateThenReadOpenOrders(t *testing.T) {
	c := newFixture()
	ctx := context.Background()

	createOp := c.BuildCreateOp("acct-1", core.SideSell, decimal.NewFromInt(101), decimal.NewFromInt(1))
	results, err := c.ExecuteBatch(ctx, "acct-1", "idem-1", []core.ChainOp{createOp})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotEmpty(t, results[0].ChainOrderID)

	orders, err := c.ReadOpenOrders(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, results[0].ChainOrderID, orders[0].ChainOrderID)
	assert.True(t, orders[0].Remaining.Equal(decimal.NewFromInt(1)))
}

func TestFakeChainClient_UpdateChangesPriceAndSize(t *testing.T) {
	c := newFixture()
	ctx := context.Background()

	createOp := c.BuildCreateOp("acct-1", core.SideBuy, decimal.NewFromInt(99), decimal.NewFromInt(2))
	results, err := c.ExecuteBatch(ctx, "acct-1", "idem-1", []core.ChainOp{createOp})
	require.NoError(t, err)
	id := results[0].ChainOrderID

	updateOp := c.BuildUpdateOp(id, core.SideBuy, decimal.NewFromInt(98), decimal.NewFromInt(3))
	_, err = c.ExecuteBatch(ctx, "acct-1", "idem-2", []core.ChainOp{updateOp})
	require.NoError(t, err)

	orders, err := c.ReadOpenOrders(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Price.Equal(decimal.NewFromInt(98)))
	assert.True(t, orders[0].Size.Equal(decimal.NewFromInt(3)))
}

func TestFakeChainClient_CancelRemovesOrder(t *testing.T) {
	c := newFixture()
	ctx := context.Background()

	createOp := c.BuildCreateOp("acct-1", core.SideSell, decimal.NewFromInt(101), decimal.NewFromInt(1))
	results, err := c.ExecuteBatch(ctx, "acct-1", "idem-1", []core.ChainOp{createOp})
	require.NoError(t, err)
	id := results[0].ChainOrderID

	_, err = c.ExecuteBatch(ctx, "acct-1", "idem-2", []core.ChainOp{c.BuildCancelOp(id)})
	require.NoError(t, err)

	orders, err := c.ReadOpenOrders(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestFakeChainClient_PushFillDeliversToSubscribersAndShrinksBook(t *testing.T) {
	c := newFixture()
	ctx := context.Background()

	createOp := c.BuildCreateOp("acct-1", core.SideSell, decimal.NewFromInt(101), decimal.NewFromInt(1))
	results, err := c.ExecuteBatch(ctx, "acct-1", "idem-1", []core.ChainOp{createOp})
	require.NoError(t, err)
	id := results[0].ChainOrderID

	var received []core.FillEvent
	_, err = c.Subscribe(ctx, "acct-1", func(fills []core.FillEvent) { received = append(received, fills...) })
	require.NoError(t, err)

	c.PushFill("acct-1", core.FillEvent{ChainOrderID: id, FilledSize: decimal.NewFromInt(1), IsMaker: true})

	require.Len(t, received, 1)
	assert.Equal(t, id, received[0].ChainOrderID)

	orders, err := c.ReadOpenOrders(ctx, "acct-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestFakeChainClient_UnsubscribeStopsDelivery(t *testing.T) {
	c := newFixture()
	ctx := context.Background()

	called := false
	unsub, err := c.Subscribe(ctx, "acct-1", func(fills []core.FillEvent) { called = true })
	require.NoError(t, err)
	unsub()

	c.PushFill("acct-1", core.FillEvent{ChainOrderID: "nonexistent", FilledSize: decimal.NewFromInt(1)})
	assert.False(t, called)
}

func TestFakeChainClient_FailNextBatchReturnsErrorOnce(t *testing.T) {
	c := newFixture()
	ctx := context.Background()
	boom := assert.AnError
	c.FailNextBatch(boom)

	_, err := c.ExecuteBatch(ctx, "acct-1", "idem-1", []core.ChainOp{c.BuildCreateOp("acct-1", core.SideSell, decimal.NewFromInt(1), decimal.NewFromInt(1))})
	assert.ErrorIs(t, err, boom)

	_, err = c.ExecuteBatch(ctx, "acct-1", "idem-2", []core.ChainOp{c.BuildCreateOp("acct-1", core.SideSell, decimal.NewFromInt(1), decimal.NewFromInt(1))})
	assert.NoError(t, err)
}

func TestFakeChainClient_AssetMetaAndFees(t *testing.T) {
	c := newFixture()
	ctx := context.Background()

	meta, err := c.AssetMeta(ctx, "BASE")
	require.NoError(t, err)
	assert.Equal(t, 8, meta.Precision)

	fees, err := c.GetAssetFees(ctx, "BASE-QUOTE")
	require.NoError(t, err)
	assert.True(t, fees.MarketFeeBps.Equal(decimal.NewFromFloat(10)))
}

func TestFakeChainClient_BatchesRecordsCalls(t *testing.T) {
	c := newFixture()
	ctx := context.Background()
	op := c.BuildCreateOp("acct-1", core.SideSell, decimal.NewFromInt(101), decimal.NewFromInt(1))
	_, err := c.ExecuteBatch(ctx, "acct-1", "idem-1", []core.ChainOp{op})
	require.NoError(t, err)

	batches := c.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "idem-1", batches[0].IdempotencyKey)
}
